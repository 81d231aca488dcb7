package link

// EqualizerBand 均衡器频段，band 0-14，gain -0.25~1.0
type EqualizerBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// Karaoke 人声消除
type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

// Timescale 变速变调
type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Tremolo 颤音（音量抖动）
type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Vibrato 颤音（音高抖动）
type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Rotation 环绕声旋转
type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

// Filters 发送给节点的滤波器配置，nil 字段表示不启用
type Filters struct {
	Volume    *float64        `json:"volume,omitempty"`
	Equalizer []EqualizerBand `json:"equalizer,omitempty"`
	Karaoke   *Karaoke        `json:"karaoke,omitempty"`
	Timescale *Timescale      `json:"timescale,omitempty"`
	Tremolo   *Tremolo        `json:"tremolo,omitempty"`
	Vibrato   *Vibrato        `json:"vibrato,omitempty"`
	Rotation  *Rotation       `json:"rotation,omitempty"`
}

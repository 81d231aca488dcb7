package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/core/link"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "节点连通性测试",
	Long:  `逐个请求配置中节点的版本接口，检查口令与网络是否可用。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if len(cfg.Nodes) == 0 {
			log.Fatal("未配置任何节点")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		for _, nc := range cfg.Nodes {
			rest := link.NewRestClient(nc)
			version, err := rest.Version(ctx)
			if err != nil {
				fmt.Printf("节点 %s (%s:%d) 探测失败: %v\n", nc.ID, nc.Host, nc.Port, err)
				continue
			}
			fmt.Printf("节点 %s (%s:%d) 版本: %s\n", nc.ID, nc.Host, nc.Port, version)
		}
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
}

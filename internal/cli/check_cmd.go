package cli

import (
	"fmt"
	"os"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/spf13/cobra"
)

// checkCmd verifies every configured account's IMAP connection
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查所有账户的 IMAP 连接",
	Long:  `对每个配置的账户做一次连接和登录验证，不会读取任何邮件。`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(cfg.Accounts) == 0 {
			fmt.Fprintln(os.Stderr, "错误: 没有配置任何邮箱账户")
			os.Exit(1)
		}

		failed := 0
		for _, account := range cfg.Accounts {
			result := services.ProbeConnection(account)
			status := "OK"
			if !result.Success {
				status = "FAIL"
				failed++
			}
			fmt.Printf("[%s] %s (%s): %s\n", status, account.ID, account.Addr(), result.Message)
		}

		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\n%d 个账户连接失败\n", failed)
			os.Exit(1)
		}
		fmt.Println("\n所有账户连接正常")
	},
}

package cli

import (
	"os"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db  *gorm.DB
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "onebox",
	Short: "多账户邮件聚合服务",
	Long: `OneBox 是一个多账户邮件聚合与分类服务。

该命令行工具提供以下功能：
  - 连接检查：验证配置的邮箱账户可以连接和登录
  - 手动回填：一次性抓取历史邮件并写入索引

使用示例：
  onebox check                 # 检查所有账户的 IMAP 连接
  onebox backfill              # 回填默认时间窗口内的邮件
  onebox backfill --days 7     # 回填最近 7 天的邮件`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, config *config.Config) {
	db = database
	cfg = config

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(backfillCmd)
}

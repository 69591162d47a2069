package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/spf13/cobra"
)

var backfillDays int

// backfillCmd runs a one-shot historical scan of every configured account
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "一次性回填历史邮件",
	Long:  `连接每个配置的账户，抓取时间窗口内的历史邮件，分类后写入索引。重复运行是安全的，已入库的邮件会被跳过。`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(cfg.Accounts) == 0 {
			fmt.Fprintln(os.Stderr, "错误: 没有配置任何邮箱账户")
			os.Exit(1)
		}

		days := backfillDays
		if days <= 0 {
			days = cfg.BackfillDays
		}
		since := time.Now().AddDate(0, 0, -days)

		logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
		classifier := services.NewClassifier(cfg.AI)
		indexer := services.NewIndexService(db, logService)
		notifier := services.NewNotifier(cfg.SlackWebhookURL, cfg.ExternalWebhookURL, logService)
		pipeline := services.NewPipeline(classifier, indexer, notifier, logService)
		scanner := services.NewBackfillScanner(pipeline, logService)

		ctx := context.Background()
		failed := 0
		for _, account := range cfg.Accounts {
			fmt.Printf("回填 %s (%s)，起始日期 %s ...\n", account.ID, account.Addr(), since.Format("2006-01-02"))

			sess, err := services.DialIMAP(account)
			if err != nil {
				fmt.Fprintf(os.Stderr, "错误: 连接 %s 失败: %v\n", account.ID, err)
				failed++
				continue
			}
			if err := sess.Login(); err != nil {
				fmt.Fprintf(os.Stderr, "错误: 登录 %s 失败: %v\n", account.ID, err)
				sess.Logout()
				failed++
				continue
			}

			processed, err := scanner.Backfill(ctx, account, sess, since)
			sess.Logout()
			if err != nil {
				fmt.Fprintf(os.Stderr, "错误: 回填 %s 失败: %v\n", account.ID, err)
				failed++
				continue
			}
			fmt.Printf("完成 %s: 处理 %d 封邮件\n", account.ID, processed)
		}

		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\n%d 个账户回填失败\n", failed)
			os.Exit(1)
		}
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "回填的天数（默认使用配置中的时间窗口）")
}

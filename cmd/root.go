package cmd

import (
	"meet-your-new-client/pkg/util"

	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	opts := &runOptions{}
	rootCmd := &cobra.Command{
		Use:   "meet-your-new-client [flags] [key=value ...]",
		Short: "报告转换信息损失基准：转换 -> 回答 -> 评判 -> 汇总",
		Long: "把 PDF/PPTX 报告用不同转换库转换为 markdown，让模型基于转换结果回答事实性问题，" +
			"再由裁判模型判定答案，最后汇总各转换库的准确率。位置参数为 key=value 形式的配置覆盖项。",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableNoDescFlag:   true,
			DisableDescriptions: true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(args)
		},
	}

	rootCmd.Flags().StringVarP(&opts.configFilePath, "config", "c", "./etc/config.yaml", "配置文件路径")
	rootCmd.Flags().BoolVarP(&opts.multirun, "multirun", "m", false, "按 sweeper.params 和逗号分隔的覆盖项扫描全部组合")
	rootCmd.Version = util.GetVersion().Version
	return rootCmd
}

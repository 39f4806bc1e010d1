package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newCdmCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "cdm", Short: "管理远端 CDM"}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "导入设备配置 JSON 并选中",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blob, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			cfg, err := svc.Settings().ImportRemote(cmd.Context(), blob)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Name())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "列出已导入的远端 CDM，* 为当前选中",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			names, err := svc.Settings().ListRemotes(cmd.Context())
			if err != nil {
				return err
			}
			selected, err := svc.Settings().SelectedRemoteName(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				mark := " "
				if n == selected {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, n)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select <name>",
		Short: "选中远端 CDM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return svc.Settings().SelectRemote(cmd.Context(), args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove",
		Short: "删除当前选中的远端 CDM",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			name, err := svc.Settings().RemoveSelectedRemote(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
			return nil
		},
	})

	var out string
	export := &cobra.Command{
		Use:   "export [name]",
		Short: "导出远端 CDM 配置（默认当前选中）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			blob, err := svc.Settings().ExportRemote(cmd.Context(), name)
			if err != nil {
				return err
			}
			if out == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(blob))
				return nil
			}
			return os.WriteFile(out, blob, 0o600)
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "", "write to file instead of stdout")
	cmd.AddCommand(export)
	return cmd
}

func newToggleCmd(a *app, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "开启或关闭调解",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return svc.Settings().SetEnabled(cmd.Context(), enabled)
		},
	}
}

func newProxyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "proxy", Short: "全局代理设置"}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <url>",
		Short: "开启全局代理",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return svc.Settings().SetProxy(cmd.Context(), args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "off",
		Short: "关闭全局代理",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			return svc.Settings().SetProxy(cmd.Context(), "")
		},
	})
	return cmd
}

func newExeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exe [name]",
		Short: "查看或设置下载命令使用的可执行文件",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return svc.Settings().SetExeName(cmd.Context(), args[0])
			}
			name, err := svc.Settings().ExeName(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"prproxy/internal/codec"
	"prproxy/internal/export"
)

func newLogsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "logs", Short: "查看与导出提取结果"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "列出提取结果",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for i, l := range svc.Logs(cmd.Context()) {
				fmt.Fprintf(w, "#%d %s %s\n", i, time.Unix(l.Timestamp, 0).Format(time.DateTime), l.URL)
				fmt.Fprintf(w, "  %s\n", export.KeyArgs(l.Keys))
				for _, m := range l.Manifests {
					fmt.Fprintf(w, "  [%s] %s\n", m.Kind, m.URL)
				}
			}
			return nil
		},
	})

	var out string
	exp := &cobra.Command{
		Use:   "export",
		Short: "以 JSON 导出提取结果",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			if out == "" {
				return svc.ExportLogs(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := svc.ExportLogs(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	exp.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.AddCommand(exp)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "清空提取结果与会话状态",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			svc.ClearLogs(cmd.Context())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cmd <index>",
		Short: "生成第 index 条结果的下载命令",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			svc, err := a.service()
			if err != nil {
				return err
			}
			cmds, err := svc.DownloadCommands(cmd.Context(), idx)
			if err != nil {
				return err
			}
			for _, c := range cmds {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	})
	return cmd
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "inspect", Short: "调试工具"}
	cmd.AddCommand(&cobra.Command{
		Use:   "pssh <kidBase64>",
		Short: "打印 KID 对应的 PSSH 与 WRMHEADER",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pssh, err := codec.BuildPSSHFromKeyID(args[0])
			if err != nil {
				return err
			}
			raw, err := codec.DecodeBase64(pssh)
			if err != nil {
				return err
			}
			box, err := codec.ParsePSSH(raw)
			if err != nil {
				return err
			}
			header, err := box.HeaderXML()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, pssh)
			fmt.Fprintln(w, header)
			return nil
		},
	})
	return cmd
}

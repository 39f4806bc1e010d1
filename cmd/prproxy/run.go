package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prproxy/pkg/model"
)

func newRunCmd(a *app) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "附加到浏览器页面并调解许可证请求，直到中断",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go printEvents(ctx, cmd, svc.Events())
			return svc.Run(ctx, model.TargetID(target))
		},
	}
	cmd.Flags().StringVarP(&target, "target", "t", "", "DevTools target id (default first page)")
	return cmd
}

func printEvents(ctx context.Context, cmd *cobra.Command, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if evt.Type == "bypass" {
				continue
			}
			line := fmt.Sprintf("[%s] %s", evt.Type, evt.Page)
			if evt.Error != "" {
				line += " " + evt.Error
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
	}
}

func newTargetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "列出浏览器中的页面",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.service()
			if err != nil {
				return err
			}
			targets, err := svc.ListTargets(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range targets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Title, t.URL)
			}
			return nil
		},
	}
}

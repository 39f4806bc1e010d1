package main

import (
	"github.com/spf13/cobra"

	"prproxy/internal/config"
	"prproxy/internal/logger"
	"prproxy/pkg/api"
)

// app 命令共享的运行时状态，服务按需打开
type app struct {
	cfgFile string
	cfg     *config.Config
	log     logger.Logger
	svc     *api.Service
}

func (a *app) service() (*api.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := api.NewService(a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "prproxy",
		Short:         "PlayReady 许可证请求调解代理",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer, File: cfg.Log.File})
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.svc != nil {
				return a.svc.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default ./prproxy.yaml)")

	root.AddCommand(
		newRunCmd(a),
		newTargetsCmd(a),
		newCdmCmd(a),
		newToggleCmd(a, "enable", true),
		newToggleCmd(a, "disable", false),
		newProxyCmd(a),
		newExeCmd(a),
		newLogsCmd(a),
		newInspectCmd(),
	)
	return root
}

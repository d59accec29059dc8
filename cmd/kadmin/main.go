// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

// Command kadmin serves an admin for the tables described in a JSON configuration
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/kadmin/core/admin"
	"github.com/relabs-tech/kadmin/core/logger"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version string

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "kadmin",
		Short:         "kadmin is an auto generated admin for postgres tables",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logger.InitLogger(level)
			if Version != "" {
				admin.Version = Version
			}
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "kadmin.json", "path to the JSON configuration of the tables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logging level [debug|info|warn|error]")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(createUserCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Default().WithError(err).Errorln("kadmin failed")
		os.Exit(1)
	}
}

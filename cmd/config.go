package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	masked   = "***masked***"
	unsetKey = "<unset>"
)

func newConfigCmd(a *app) *cobra.Command {
	var (
		reveal bool
		key    string
	)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Prints the resolved configuration after every layer is applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if key != "" {
				value := a.props.String(key, unsetKey)
				if key == "admin.password" && !reveal && value != unsetKey {
					value = masked
				}
				_, err := fmt.Fprintln(out, value)
				return err
			}

			resolved := *a.cfg
			if !reveal && resolved.AdminCfg.Password != "" {
				resolved.AdminCfg.Password = masked
			}
			data, err := yaml.Marshal(&resolved)
			if err != nil {
				return fmt.Errorf("encoding configuration: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
	configCmd.Flags().BoolVar(&reveal, "reveal", false, "print the admin password in clear text")
	configCmd.Flags().StringVar(&key, "get", "", "print a single key, e.g. apps.backoffice_url")
	return configCmd
}

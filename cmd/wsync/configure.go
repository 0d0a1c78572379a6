package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/wallasync/internal/config"
	"github.com/mschirtzinger/wallasync/internal/ui"
)

var configureCmd = &cobra.Command{
	Use:     "configure",
	GroupID: "setup",
	Short:   "Interactively write the config file",
	Long: `Prompt for the server location and API credentials and write them to
the config file.

The client id and secret come from your wallabag profile under
"API clients management". Credentials are stored as literal strings; to
read them from a password manager instead, edit the file and replace a
value with {cmd = ["pass", "show", "..."]}.`,
	Run: func(cmd *cobra.Command, args []string) {
		path := cfgFile
		if path == "" {
			var err error
			if path, err = config.DefaultPath(); err != nil {
				fatal("%v", err)
			}
		}

		// Start from the existing file so reconfiguring keeps unrelated
		// settings.
		cfg, err := config.Load(path)
		if err != nil {
			cfg = &config.Config{}
		}

		baseURL := cfg.Server.BaseURL
		if baseURL == "" {
			baseURL = "https://app.wallabag.it"
		}
		clientID := cfg.Server.ClientID.Literal
		clientSecret := cfg.Server.ClientSecret.Literal
		username := cfg.Server.Username.Literal
		password := cfg.Server.Password.Literal

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Server URL").
					Description("The wallabag instance to sync against").
					Value(&baseURL),
				huh.NewInput().
					Title("Client ID").
					Value(&clientID),
				huh.NewInput().
					Title("Client secret").
					EchoMode(huh.EchoModePassword).
					Value(&clientSecret),
				huh.NewInput().
					Title("Username").
					Value(&username),
				huh.NewInput().
					Title("Password").
					EchoMode(huh.EchoModePassword).
					Value(&password),
			),
		)
		if err := form.Run(); err != nil {
			fatal("%v", err)
		}

		cfg.Server.BaseURL = baseURL
		cfg.Server.ClientID = config.Secret{Literal: clientID}
		cfg.Server.ClientSecret = config.Secret{Literal: clientSecret}
		cfg.Server.Username = config.Secret{Literal: username}
		cfg.Server.Password = config.Secret{Literal: password}

		if err := cfg.Save(path); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("%s Wrote %s\n", ui.RenderPass("✓"), path)
		fmt.Println("Run 'wsync init' to create the cache, then 'wsync sync'.")
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

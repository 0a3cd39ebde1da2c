package commands

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pqchat/internal/app"
	"pqchat/internal/logging"
)

var (
	home       string
	configPath string
	serverURL  string
	socketURL  string
	user       string
	token      string
	passphrase string
	logLevel   string
	devLogs    bool

	wire   *app.Wire
	appCtx *app.App
)

func Execute() error {
	root := &cobra.Command{
		Use:          "pqchat",
		Short:        "Post-quantum end-to-end encrypted chat CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, devLogs)
			if err != nil {
				return err
			}
			w, err := app.NewWire(cfg, log)
			if err != nil {
				_ = log.Sync()
				return err
			}
			wire = w
			appCtx = app.New(w)
			log.Debug("wired", zap.String("user", cfg.User), zap.String("home", cfg.Home))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			_ = wire.Log.Sync()
			return wire.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&home, "home", "", "data dir (default ~/.pqchat)")
	pf.StringVar(&configPath, "config", "", "config file (default <home>/config.toml)")
	pf.StringVar(&serverURL, "server", "", "server base URL (e.g. http://127.0.0.1:8080)")
	pf.StringVar(&socketURL, "socket", "", "chat socket URL (default derived from --server)")
	pf.StringVarP(&user, "user", "u", "", "your user id")
	pf.StringVar(&token, "token", "", "bearer token (default: user id)")
	pf.StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the key store (or "+app.EnvPassphrase+")")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&devLogs, "dev-logs", false, "human-readable logs")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		historyCmd(),
		sendCmd(),
		chatCmd(),
	)
	return root.Execute()
}

// loadConfig layers defaults, the config file, the environment and flags,
// in that order.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	dir := home
	if dir == "" {
		dir = app.DefaultHome()
	}
	path := configPath
	if path == "" {
		path = filepath.Join(dir, app.ConfigFilename)
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		return app.Config{}, err
	}
	if home != "" {
		cfg.Home = home
	}
	cfg.Passphrase = passphrase
	cfg.ApplyEnvOverrides()

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = serverURL
	}
	if flags.Changed("socket") {
		cfg.SocketURL = socketURL
	}
	if flags.Changed("user") {
		cfg.User = user
	}
	if flags.Changed("token") {
		cfg.Token = token
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/AlfredBerg/sps-crawler/internal/browser"
	"github.com/AlfredBerg/sps-crawler/internal/crawl"
	"github.com/AlfredBerg/sps-crawler/internal/download"
	"github.com/AlfredBerg/sps-crawler/internal/fetch"
	"github.com/AlfredBerg/sps-crawler/internal/logging"
	"github.com/AlfredBerg/sps-crawler/internal/outputHandlers/sqlite"
	"github.com/AlfredBerg/sps-crawler/internal/session"
	"github.com/AlfredBerg/sps-crawler/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var cfgFile string

type runFlags struct {
	start       int
	end         int
	option      int
	logonID     int
	debug       bool
	tableConfig string
	fileDLKey   string
}

var flags runFlags

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags = runFlags{}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sps-crawler.yaml)")
	rootCmd.Flags().IntVar(&flags.start, "start_num", 0, "Starting index for links. (optional)")
	rootCmd.Flags().IntVar(&flags.end, "end_num", -1, "Ending index for links, -1 for all. (optional)")
	rootCmd.Flags().IntVar(&flags.option, "option", 0, fmt.Sprintf("Run this option (1-%d) before showing the menu.", len(crawl.Options)))
	rootCmd.Flags().IntVar(&flags.logonID, "logon_id", 0, "The logon ID. (0 = IBS, 1 = DSI)")
	rootCmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug mode.")
	rootCmd.Flags().StringVar(&flags.tableConfig, "table_config", "", "The table configuration, e.g. customers.")
	rootCmd.Flags().StringVar(&flags.fileDLKey, "file_dl_key", "", "The key to download.")

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root_dir", "sps_downloads")
	v.SetDefault("browser_download_dir", "downloaded_files")
	v.SetDefault("errs_dir", "ERRS")
	v.SetDefault("journal", "sps-crawler.db")
	v.SetDefault("headless", false)
	v.SetDefault("chunk_size", 0)
	v.SetDefault("image_workers", 0)
	v.SetDefault("missing_image_workers", 0)
	v.SetDefault("image_rate", 0.0)
	v.SetDefault("fetch_retries", 2)
	for sub, l := range session.DefaultLogons() {
		v.SetDefault("logons."+sub.String()+".url", l.URL)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".sps-crawler" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sps-crawler")
	}

	// SPS_LOGONS_IBS_PASSWORD overrides logons.ibs.password
	viper.SetEnvPrefix("SPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

var rootCmd = &cobra.Command{
	Use:   "sps-crawler",
	Short: "Archives StoneProfits listing tables, record pages and their attached files",

	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func logons(v *viper.Viper) map[session.Subsidiary]session.Logon {
	res := map[session.Subsidiary]session.Logon{}
	for sub, def := range session.DefaultLogons() {
		key := "logons." + sub.String()
		res[sub] = session.Logon{
			Name:     def.Name,
			URL:      v.GetString(key + ".url"),
			Username: v.GetString(key + ".username"),
			Password: v.GetString(key + ".password"),
		}
	}
	return res
}

func sessionOptions(v *viper.Viper, debug bool) session.Options {
	return session.Options{
		Root:               v.GetString("root_dir"),
		BrowserDownloadDir: v.GetString("browser_download_dir"),
		ErrsDir:            v.GetString("errs_dir"),
		Debug:              debug,
		Logons:             logons(v),
	}
}

func newJob(v *viper.Viper, c session.Context, st *storage.Storage, log *zap.Logger) *crawl.Job {
	f := fetch.NewHTTP(st, fetch.Options{
		RequestsPerSecond: v.GetFloat64("image_rate"),
		Retries:           uint64(v.GetInt("fetch_retries")),
	})
	return &crawl.Job{
		Ctx:                 c,
		Storage:             st,
		Fetcher:             f,
		Log:                 log,
		ChunkSize:           v.GetInt("chunk_size"),
		ImageWorkers:        v.GetInt("image_workers"),
		MissingImageWorkers: v.GetInt("missing_image_workers"),
		NextKey:             askNextKey,
	}
}

func run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	v := viper.GetViper()

	log, err := logging.New(flags.debug)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	sub, err := session.ParseSubsidiary(flags.logonID)
	if err != nil {
		return err
	}
	table := flags.tableConfig
	if table == "" {
		if table, err = askTable(); err != nil {
			return err
		}
	}
	log.Info("getting config for table", zap.String("table", table))
	c, err := session.New(table, sub, sessionOptions(v, flags.debug))
	if err != nil {
		return err
	}

	st := storage.NewOs()
	j := newJob(v, c, st, log)

	var rb *browser.Rod
	j.Connect = func() (browser.Session, error) {
		r, err := browser.Launch(browser.LaunchOptions{
			Headless:    v.GetBool("headless"),
			DownloadDir: c.BrowserDownloadDir,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := browser.Login(r, c.Logon, browser.LoginTimeouts, log); err != nil {
			r.Quit()
			return nil, err
		}
		rb = r
		return r, nil
	}
	defer func() {
		if rb != nil {
			rb.Quit()
		}
	}()

	option := flags.option
	journal := &sqlite.Journal{Database: v.GetString("journal"), Log: log}
	if err := journal.Init(sqlite.Run{Subsidiary: sub.String(), Table: table, Option: option, Debug: flags.debug}); err != nil {
		log.Warn("run journal disabled", zap.Error(err))
	} else {
		j.Journal = journal
		defer func() {
			if outcomes, err := journal.Outcomes(); err == nil && len(outcomes) > 0 {
				log.Info("download outcomes this run", zap.Any("outcomes", outcomes))
			}
			journal.Cleanup()
		}()
	}

	if err := j.Prepare(); err != nil {
		return err
	}

	p := crawl.Params{Start: flags.start, End: flags.end, Key: flags.fileDLKey}
	return loop(ctx, j, flags.option, p, askOption)
}

// fatal reports whether err must end the process instead of returning to the
// menu.
func fatal(err error) bool {
	return errors.Is(err, download.ErrReferenceMissing)
}

// loop runs option, then keeps asking for the next one until quit. A zero
// option goes straight to the menu.
func loop(ctx context.Context, j *crawl.Job, option int, p crawl.Params, ask func(session.Context) (int, error)) error {
	for {
		if option == 0 {
			var err error
			if option, err = ask(j.Ctx); err != nil {
				return err
			}
		}
		err := j.Run(ctx, option, p)
		if errors.Is(err, crawl.ErrQuit) {
			return nil
		}
		if fatal(err) {
			j.Log.Error("stopping, reference links are missing (create them with option 7)", zap.Int("option", option), zap.Error(err))
			return err
		}
		if err != nil {
			j.Log.Error("option failed", zap.Int("option", option), zap.Error(err))
		}
		option = 0
	}
}

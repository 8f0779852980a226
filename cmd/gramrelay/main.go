package main

import (
	"context"

	"github.com/jfk9w/gramrelay/internal/3rdparty/instagram"
	"github.com/jfk9w/gramrelay/internal/core"
	"github.com/jfk9w/gramrelay/internal/ext/vendors"

	"github.com/jfk9w-go/flu"
	"github.com/jfk9w-go/flu/apfel"
	"github.com/jfk9w-go/flu/gormf"
	"github.com/jfk9w-go/flu/logf"
	"github.com/jfk9w-go/telegram-bot-api/ext/tapp"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type C struct {
	Telegram struct {
		tapp.Config          `yaml:",inline"`
		core.InterfaceConfig `yaml:",inline"`
	} `yaml:"telegram" doc:"Bot-related settings."`

	Db apfel.GormConfig `yaml:"db,omitempty" doc:"Database connection settings. Supported drivers: postgres, sqlite (not fully)" default:"{\"driver\":\"sqlite\",\"dsn\":\"file::memory:?cache=shared\"}"`

	Poller core.PollerConfig `yaml:"poller,omitempty" doc:"Poller-related settings."`

	Instagram instagram.Config `yaml:"instagram" doc:"instagram.com-related settings."`

	Logging    apfel.LogfConfig       `yaml:"logging,omitempty" doc:"Logging settings."`
	Prometheus apfel.PrometheusConfig `yaml:"prometheus,omitempty" doc:"Prometheus settings."`
}

func (c C) LogfConfig() apfel.LogfConfig             { return c.Logging }
func (c C) PrometheusConfig() apfel.PrometheusConfig { return c.Prometheus }
func (c C) TelegramConfig() tapp.Config              { return c.Telegram.Config }
func (c C) InterfaceConfig() core.InterfaceConfig    { return c.Telegram.InterfaceConfig }
func (c C) PollerConfig() core.PollerConfig          { return c.Poller }
func (c C) StorageConfig() apfel.GormConfig          { return c.Db }
func (c C) InstagramConfig() instagram.Config        { return c.Instagram }

var GitCommit = "dev"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := apfel.Boot[C]{
		Name:    "gramrelay",
		Version: GitCommit,
	}.App(ctx)
	defer flu.CloseQuietly(app)

	var (
		gorm = &apfel.Gorm[C]{
			Drivers: map[string]apfel.GormDriver{
				"postgres": postgres.Open,
				"sqlite":   sqlite.Open,
			},
			Config: gorm.Config{
				Logger: gormf.LogfLogger(app, "gorm.sql"),
			},
		}

		poller   core.Poller[C]
		telegram tapp.Mixin[C]
	)

	app.Uses(ctx,
		new(apfel.Logf[C]),
		new(apfel.Prometheus[C]),
		&telegram,
		gorm,
		&poller,
		new(core.Interface[C]),
		vendors.InstagramComments[C](),
		vendors.InstagramPosts[C](),
	)

	if err := poller.RestoreActive(ctx); err != nil {
		logf.Panicf(ctx, "restore active: %+v", err)
	}

	telegram.Run(ctx)
}

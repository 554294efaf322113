package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/artbot/core/config"
	coretelegram "github.com/m3rciful/artbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type fakeApp struct {
	served bool
	closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{}, nil
}

func (a *fakeApp) Serve(ctx context.Context) error {
	<-ctx.Done()
	a.served = true
	return nil
}

func (a *fakeApp) Close() error { a.closed = true; return nil }

func TestRunStopsSideServersWithBot(t *testing.T) {
	app := &fakeApp{}
	var started bool
	err := Run(Options{
		DefaultConfigPath: "configs/config.yaml",
		ConfigEnvVar:      "ARTBOT_TEST_CONFIG_UNSET",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return app, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			started = opts.OnStart != nil && opts.OnStart(ctx, coretelegram.Runtime{}) == nil
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, app.served)
	assert.True(t, app.closed)
}

func TestRunReportsBotError(t *testing.T) {
	boom := errors.New("bot init failed")
	err := Run(Options{
		DefaultConfigPath: "x.yaml",
		ConfigEnvVar:      "ARTBOT_TEST_CONFIG_UNSET",
		LoadConfig: func(string) (ConfigCarrier, error) {
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap:      func(ConfigCarrier) (TelegramApp, error) { return &fakeApp{}, nil },
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(context.Context, coretelegram.RunOptions) error {
			return boom
		},
	})
	assert.ErrorIs(t, err, boom)
}

package cli

import (
	"fmt"
	"io"

	"github.com/labstack/gommon/log"

	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/config"
	"github.com/lachlan2k/gatekeep/internal/credstore"
	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/session"
)

// runtime is one process's view of the session: the shared credential store, the gateway
// reading from it, and the machine the gateway evicts through.
type runtime struct {
	store   *credstore.Store
	api     *backend.Client
	machine *session.Machine

	closeStore func() error
}

func newLogger(prefix string, conf *config.Config, w io.Writer) *log.Logger {
	logger := log.New(prefix)
	logger.SetOutput(w)
	logger.SetLevel(conf.LogLevel())
	return logger
}

func newRuntime(conf *config.Config, nav session.Navigator, logOut io.Writer) (*runtime, error) {
	rt := &runtime{closeStore: func() error { return nil }}

	var b credstore.Backend
	switch conf.Store.Type {
	case config.StoreSQLite:
		sqlite, err := credstore.NewSQLiteBackend(conf.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}
		b = sqlite
		rt.closeStore = sqlite.Close
	default:
		b = credstore.NewFileBackend(conf.Store.Path)
	}

	rt.store = credstore.New(b, newLogger("credstore", conf, logOut))

	gw := gateway.New(conf.Backend.BaseURL, gateway.TokenSourceFromStore(rt.store), gateway.Options{
		Evictor: gateway.EvictorFunc(func() { rt.machine.Evict() }),
		Logger:  newLogger("gateway", conf, logOut),
	})
	rt.api = backend.New(gw, conf.BackendPaths())

	rt.machine = session.New(rt.store, rt.api, nav, session.Options{
		Logger: newLogger("session", conf, logOut),
	})

	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.closeStore()
}

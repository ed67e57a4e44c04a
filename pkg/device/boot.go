package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/itohio/gotmep/pkg/provision"
	"github.com/itohio/gotmep/pkg/store"
)

var (
	// ErrRestart stops the loop; the process is expected to restart.
	ErrRestart = errors.New("restart requested")
	// ErrFatal marks storage failures that leave the device unusable.
	ErrFatal = errors.New("fatal storage failure")
)

// Boot loads the persisted settings. Without settings the provisioning
// service is run, the collected settings are persisted and ErrRestart is
// returned so the device starts over with them.
func Boot(ctx context.Context, st store.Store, svc provision.Service, portal string, defaults store.Settings, logger *slog.Logger) (store.Settings, error) {
	if logger == nil {
		logger = slog.Default()
	}

	settings, err := st.Load()
	if err == nil {
		logger.Info("config load successful")
		return settings, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Settings{}, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	logger.Info("config load failed, starting configuration portal", slog.String("portal", portal))

	var saveErr error
	err = svc.Run(ctx, portal, defaults, provision.Handlers{
		OnEnter: func(name string) {
			logger.Info("configuration portal open", slog.String("portal", name))
		},
		OnSave: func(s store.Settings) error {
			logger.Info("saving configuration")
			saveErr = st.Save(s)
			return saveErr
		},
	})
	if saveErr != nil {
		return store.Settings{}, fmt.Errorf("%w: %v", ErrFatal, saveErr)
	}
	if err != nil {
		logger.Warn("configuration portal failed", slog.Any("error", err))
		return store.Settings{}, fmt.Errorf("%w: provisioning: %v", ErrRestart, err)
	}

	logger.Info("restarting after configuration portal")
	return store.Settings{}, fmt.Errorf("%w: provisioned", ErrRestart)
}

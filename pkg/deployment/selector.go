package deployment

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/fuzzsync/pkg/config"
	"github.com/ethpandaops/fuzzsync/pkg/coverage"
	"github.com/ethpandaops/fuzzsync/pkg/filestore"
	"github.com/ethpandaops/fuzzsync/pkg/fsutil"
	"github.com/ethpandaops/fuzzsync/pkg/httpfetch"
	"github.com/ethpandaops/fuzzsync/pkg/workspace"
	"github.com/sirupsen/logrus"
)

// ErrUnknownPlatform is returned by Select for a platform without a
// deployment.
var ErrUnknownPlatform = errors.New("unknown platform")

// Dependencies are the collaborators a deployment is built from. Nil
// fields are filled with defaults derived from the configuration.
type Dependencies struct {
	Store    filestore.Store
	Versions VersionFetcher
	Archives ZipFetcher
	Coverage coverage.Factory
	Observer Observer
}

type constructor func(
	log logrus.FieldLogger,
	cfg *config.Config,
	ws *workspace.Workspace,
	deps *Dependencies,
) Deployment

var constructors = map[config.Platform]constructor{
	config.PlatformInternalGenericCI: newOSSFromDeps,
	config.PlatformInternalGitHub:    newOSSFromDeps,
	config.PlatformExternalGenericCI: newNullFromDeps,
	config.PlatformExternalGitHub:    newLiteFromDeps,
}

func newOSSFromDeps(
	log logrus.FieldLogger, cfg *config.Config, ws *workspace.Workspace, deps *Dependencies,
) Deployment {
	return NewOSS(log, cfg, ws, deps.Versions, deps.Archives, deps.Coverage, deps.Observer)
}

func newLiteFromDeps(
	log logrus.FieldLogger, cfg *config.Config, ws *workspace.Workspace, deps *Dependencies,
) Deployment {
	return NewLite(log, cfg, ws, deps.Store, deps.Coverage, deps.Observer)
}

func newNullFromDeps(
	log logrus.FieldLogger, cfg *config.Config, _ *workspace.Workspace, deps *Dependencies,
) Deployment {
	owner, _ := fsutil.ParseOwner(cfg.WorkspaceOwner)

	return NewNull(log, owner, deps.Observer)
}

// Select returns the deployment matching cfg.Platform. It performs no I/O.
func Select(
	log logrus.FieldLogger,
	cfg *config.Config,
	ws *workspace.Workspace,
	deps Dependencies,
) (Deployment, error) {
	ctor, ok := constructors[cfg.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, cfg.Platform)
	}

	log = log.WithField("component", "deployment")

	if err := deps.fill(log, cfg); err != nil {
		return nil, err
	}

	d := ctor(log, cfg, ws, &deps)

	log.WithFields(logrus.Fields{
		"platform":   cfg.Platform.String(),
		"deployment": d.Name(),
	}).Info("Selected deployment")

	return d, nil
}

// fill sets defaults for missing collaborators. One HTTP fetcher serves
// every public download.
func (d *Dependencies) fill(log logrus.FieldLogger, cfg *config.Config) error {
	if d.Store == nil {
		d.Store = filestore.NewNoopStore(log)
	}

	if d.Versions == nil || d.Archives == nil || d.Coverage == nil {
		fetcher, err := httpfetch.NewFromConfig(log, cfg)
		if err != nil {
			return fmt.Errorf("creating http fetcher: %w", err)
		}

		if d.Versions == nil {
			d.Versions = fetcher
		}

		if d.Archives == nil {
			d.Archives = fetcher
		}

		if d.Coverage == nil {
			d.Coverage = coverage.NewFactory(log, fetcher, cfg.Public.BaseURL, cfg.Public.CoverageBucket)
		}
	}

	if d.Observer == nil {
		d.Observer = nopObserver{}
	}

	return nil
}

package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/CiscoSE/MaxmindAsnImporter/internal/config"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/maxmind"
	"github.com/CiscoSE/MaxmindAsnImporter/internal/stealthwatch"
)

// parentTagName is the tag created under the root scope when no parent tag id
// is configured. All organization tags live under it.
const parentTagName = "MaxMind Data"

// timeAfter is swapped out by the daemon-loop tests.
var timeAfter = time.After

// Importer sequences one import cycle: version check, dataset download,
// keyword matching, and reconciliation against the SMC. It owns no global
// state; configuration and run-state travel through the *config.Config it was
// built with, which it persists after each successful cycle.
type Importer struct {
	cfg     *config.Config
	fetcher *maxmind.Fetcher
	matcher *maxmind.Matcher
	client  *stealthwatch.Client
}

// New builds an Importer and its collaborators from the configuration.
func New(cfg *config.Config) *Importer {
	return &Importer{
		cfg: cfg,
		fetcher: maxmind.NewFetcher(
			cfg.MaxMind.VersionURL,
			cfg.MaxMind.DatasetURL,
			cfg.MaxMind.LicenseKey,
			cfg.HTTP,
		),
		matcher: maxmind.NewMatcher(cfg.MergeRanges),
		client: stealthwatch.NewClient(stealthwatch.Options{
			HTTP:        cfg.HTTP,
			InsecureTLS: cfg.Stealthwatch.InsecureTLS,
		}),
	}
}

// Run executes one cycle. When the fetched dataset version equals the last
// imported one the cycle is a no-op: no archive download, no matching, no
// reconciliation, not even a login. Otherwise the full import runs, and only
// after every reconciliation action has been applied is the new version
// persisted. A failure anywhere leaves the version untouched, so the next run
// retries the same dataset (at-least-once, never partial).
func (i *Importer) Run(ctx context.Context) error {
	version, err := i.fetcher.Version(ctx)
	if err != nil {
		return err
	}

	if version == i.cfg.LastVersionImported {
		log.Info("last imported data is up to date", "version", version)
		return nil
	}

	log.Info("new dataset version available", "version", version, "previous", i.cfg.LastVersionImported)

	if err := i.importVersion(ctx); err != nil {
		return err
	}

	i.cfg.LastVersionImported = version
	if err := i.cfg.Save(); err != nil {
		return fmt.Errorf("persist run state: %w", err)
	}

	log.Info("MaxMind addresses imported", "version", version)
	return nil
}

func (i *Importer) importVersion(ctx context.Context) error {
	sw := i.cfg.Stealthwatch
	if err := i.client.Login(ctx, sw.Address, sw.Username, sw.Password); err != nil {
		return err
	}

	if err := i.ensureTenant(ctx); err != nil {
		return err
	}
	if err := i.ensureParentTag(ctx); err != nil {
		return err
	}

	archive, err := i.fetcher.Download(ctx)
	if err != nil {
		return err
	}
	defer os.Remove(archive)

	sources, err := maxmind.ReadArchive(archive)
	if err != nil {
		return err
	}

	results, err := i.matcher.Match(ctx, i.cfg.Searches, sources)
	if err != nil {
		return err
	}

	log.Info("fetching tags from Stealthwatch")
	tags, err := i.client.Tags(ctx)
	if err != nil {
		return err
	}

	actions, err := NewReconciler(i.client).Reconcile(ctx, results, tags, i.cfg.Stealthwatch.ParentTagID)
	if err != nil {
		return err
	}

	for _, action := range actions {
		if err := i.apply(ctx, action); err != nil {
			return err
		}
	}
	return nil
}

// ensureTenant adopts the first visible Stealthwatch domain when none is
// configured, and persists the choice so later runs skip the lookup.
func (i *Importer) ensureTenant(ctx context.Context) error {
	if i.cfg.Stealthwatch.TenantID == 0 {
		tenants, err := i.client.Tenants(ctx)
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			return errors.New("no Stealthwatch tenants visible to this user")
		}
		i.cfg.Stealthwatch.TenantID = tenants[0].ID
		if err := i.cfg.Save(); err != nil {
			return fmt.Errorf("persist tenant id: %w", err)
		}
		log.Info("adopted Stealthwatch tenant", "tenant", tenants[0].ID, "name", tenants[0].Name)
	}

	i.client.SetTenant(i.cfg.Stealthwatch.TenantID)
	return nil
}

// ensureParentTag creates the parent tag under the root scope when none is
// configured and persists its id. Every organization tag is created or
// matched under this parent.
func (i *Importer) ensureParentTag(ctx context.Context) error {
	if i.cfg.Stealthwatch.ParentTagID != 0 {
		return nil
	}

	detail, err := i.client.CreateTag(ctx, 0, parentTagName, nil)
	if err != nil {
		return fmt.Errorf("create parent tag: %w", err)
	}
	i.cfg.Stealthwatch.ParentTagID = detail.ID
	if err := i.cfg.Save(); err != nil {
		return fmt.Errorf("persist parent tag id: %w", err)
	}

	log.Info("created parent tag", "tag", detail.ID, "name", parentTagName)
	return nil
}

func (i *Importer) apply(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionUpdate:
		log.Info("updating tag", "tag", action.TagID, "org", action.Name, "ranges", len(action.Ranges))
		_, err := i.client.UpdateTag(ctx, action.ParentID, action.TagID, action.Name, action.Ranges)
		return err
	case ActionCreate:
		log.Info("creating tag", "org", action.Name, "ranges", len(action.Ranges))
		_, err := i.client.CreateTag(ctx, action.ParentID, action.Name, action.Ranges)
		return err
	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// RunDaemon loops Run with a fixed idle sleep between cycles. The sleep is
// wall-clock-naive: it measures idle time only, not cycle duration, and there
// is no jitter or backoff. A failed cycle is logged and retried on the next
// tick, preserving the at-least-once semantics of a stale persisted version.
// Cancelling ctx between cycles ends the loop gracefully.
func (i *Importer) RunDaemon(ctx context.Context, interval time.Duration) error {
	for {
		if err := i.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("import cycle failed", "error", err)
		}

		log.Info("waiting for next cycle", "interval", interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timeAfter(interval):
		}
	}
}

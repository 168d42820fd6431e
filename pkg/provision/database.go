package provision

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	firestoreadmin "google.golang.org/api/firestore/v1"

	"github.com/stackpilot/stackpilot/pkg/logging"
)

const (
	defaultDatabaseID     = "(default)"
	databaseTypeNative    = "FIRESTORE_NATIVE"
	databaseTypeDatastore = "DATASTORE_MODE"
)

func (p *Provisioner) databaseName() string {
	return fmt.Sprintf("projects/%s/databases/%s", p.cfg.ProjectID, defaultDatabaseID)
}

func (p *Provisioner) probeDatabase(ctx context.Context) error {
	_, err := p.dbAdmin.Projects.Databases.Get(p.databaseName()).Context(ctx).Do()
	return err
}

func (p *Provisioner) createDatabase(ctx context.Context) error {
	db := &firestoreadmin.GoogleFirestoreAdminV1Database{
		Type:       databaseTypeNative,
		LocationId: p.cfg.Region,
	}

	op, err := p.dbAdmin.Projects.Databases.Create("projects/"+p.cfg.ProjectID, db).
		DatabaseId(defaultDatabaseID).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to create firestore database: %w", err)
	}

	return p.waitForDatabaseOperation(ctx, op.Name)
}

// repairDatabaseMode converges a database that was created in Datastore mode
// back to Native mode. Recreating the database destroys its contents, so the
// repair runs only when the database holds no documents and the operator has
// confirmed destructive actions for this run. Anything else is reported and
// left for a manual migration.
func (p *Provisioner) repairDatabaseMode(ctx context.Context) error {
	db, err := p.dbAdmin.Projects.Databases.Get(p.databaseName()).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to inspect firestore database: %w", err)
	}
	if db.Type == databaseTypeNative {
		return nil
	}

	logging.Warn("firestore database is not in native mode",
		"project", p.cfg.ProjectID,
		"mode", db.Type)

	hasData, err := p.databaseHasData(ctx)
	if err != nil {
		// If we cannot tell whether data exists, treat it as present.
		hasData = true
		logging.Warn("could not inspect database contents, assuming data is present", "error", err)
	}

	recreate, reason := shouldRecreateDatabase(db.Type, hasData, p.AssumeYes)
	if !recreate {
		// Never destroy a database we cannot prove is safe to destroy. The
		// rest of the plan still provisions; the mode stays wrong until an
		// operator migrates or deletes the database by hand.
		return WarnOnly(fmt.Errorf("database %s is in %s mode and cannot be recreated automatically (%s); migrate or delete it manually", p.databaseName(), db.Type, reason))
	}

	logging.Warn("recreating empty firestore database in native mode", "project", p.cfg.ProjectID)

	op, err := p.dbAdmin.Projects.Databases.Delete(p.databaseName()).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to delete firestore database: %w", err)
	}
	if err := p.waitForDatabaseOperation(ctx, op.Name); err != nil {
		return err
	}

	return p.createDatabase(ctx)
}

// shouldRecreateDatabase decides whether a mode mismatch can be fixed by
// deleting and recreating the database. A database with data is never
// recreated, and an empty one is recreated only with explicit confirmation.
func shouldRecreateDatabase(dbType string, hasData, confirmed bool) (bool, string) {
	if dbType == databaseTypeNative {
		return false, "database is already in native mode"
	}
	if hasData {
		return false, "database contains data"
	}
	if !confirmed {
		return false, "destructive repair requires confirmation, re-run with --yes"
	}
	return true, ""
}

// databaseHasData reports whether the default database holds at least one
// collection. One listing call is enough; emptiness, not size, is the
// question.
func (p *Provisioner) databaseHasData(ctx context.Context) (bool, error) {
	client, err := firestore.NewClient(ctx, p.cfg.ProjectID, p.cfg.ClientOptions()...)
	if err != nil {
		return false, fmt.Errorf("failed to create firestore client: %w", err)
	}
	defer client.Close()

	_, err = client.Collections(ctx).Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	return true, nil
}

func (p *Provisioner) waitForDatabaseOperation(ctx context.Context, name string) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	timeout := time.After(5 * time.Minute)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return fmt.Errorf("timeout waiting for database operation %s", name)
		case <-ticker.C:
			op, err := p.dbAdmin.Projects.Databases.Operations.Get(name).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to poll database operation: %w", err)
			}
			if op.Done {
				if op.Error != nil {
					return fmt.Errorf("database operation failed: %s", op.Error.Message)
				}
				return nil
			}
		}
	}
}

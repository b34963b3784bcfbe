package dataio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mouldworks/mouldworks/internal/shared"
)

// AuditPort records import and backup actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service moves master data in and out of the system as CSV. Entities
// register themselves with the registry; import matches rows against
// existing records by natural key so a re-run updates instead of
// duplicating.
type Service struct {
	entities map[string]*entitySpec
	audit    AuditPort
}

// NewService constructs an empty registry. The app wires in one
// register call per entity.
func NewService(audit AuditPort) *Service {
	return &Service{entities: map[string]*entitySpec{}, audit: audit}
}

// Entities lists the registered entity names, sorted.
func (s *Service) Entities() []string {
	names := make([]string, 0, len(s.entities))
	for name := range s.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) register(spec *entitySpec) {
	s.entities[spec.name] = spec
}

func (s *Service) entity(name string) (*entitySpec, error) {
	spec, ok := s.entities[name]
	if !ok {
		return nil, fmt.Errorf("dataio: %q: %w", name, ErrUnknownEntity)
	}
	return spec, nil
}

// Template renders the import template for an entity: the header row
// with required columns starred, plus one example row.
func (s *Service) Template(name string) ([]byte, error) {
	spec, err := s.entity(name)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(templateHeader(spec.columns)); err != nil {
		return nil, err
	}
	if err := w.Write(spec.example); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Import reads a CSV upload and upserts each row. Unknown columns are
// ignored; rows that fail validation are reported and skipped.
func (s *Service) Import(ctx context.Context, name string, r io.Reader, actorID int64) (ImportResult, error) {
	spec, err := s.entity(name)
	if err != nil {
		return ImportResult{}, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("dataio: empty or unreadable file: %w", ErrValidation)
	}
	columns := make([]string, len(header))
	for i, raw := range header {
		columns[i] = normalizeHeader(raw)
	}

	result := ImportResult{ErrorMessages: []string{}}
	rowNum := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			result.Errors++
			result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}

		row := map[string]string{}
		empty := true
		for i, value := range record {
			if i >= len(columns) {
				break
			}
			value = strings.TrimSpace(value)
			row[columns[i]] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}

		if missing := missingRequired(spec.columns, row); len(missing) > 0 {
			result.Errors++
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("Row %d: missing required fields: %s", rowNum, strings.Join(missing, ", ")))
			continue
		}

		outcome, err := spec.upsert(ctx, row, actorID)
		if err != nil {
			result.Errors++
			result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if outcome == outcomeCreated {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.record(ctx, actorID, "dataio.import", name, map[string]any{
		"created": result.Created,
		"updated": result.Updated,
		"errors":  result.Errors,
	})
	return result, nil
}

// Export renders all current rows of an entity as CSV.
func (s *Service) Export(ctx context.Context, name string) ([]byte, error) {
	spec, err := s.entity(name)
	if err != nil {
		return nil, err
	}
	rows, err := spec.export(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader(spec.columns)); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// Backup bundles every entity export into one ZIP archive. Entities
// export concurrently; the archive itself is written in stable order.
func (s *Service) Backup(ctx context.Context, actorID int64) ([]byte, error) {
	names := s.Entities()
	exports := make([][]byte, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			data, err := s.Export(gctx, name)
			if err != nil {
				return fmt.Errorf("export %s: %w", name, err)
			}
			exports[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	stamp := time.Now().Format("2006-01-02")
	for i, name := range names {
		f, err := zw.Create(name + "-" + stamp + ".csv")
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(exports[i]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "dataio.backup", "all", map[string]any{"entities": len(s.entities)})
	return buf.Bytes(), nil
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "dataio",
		EntityID: entity,
		Meta:     meta,
	})
}

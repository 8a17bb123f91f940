// Package backup dumps the transcript table to a JSON envelope and restores
// it, preserving last_updated so a restore does not look like fresh activity
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ivodsync/internal/platform/clock"
	perr "ivodsync/internal/platform/errors"
	"ivodsync/internal/platform/logger"
	"ivodsync/internal/platform/store"
	"ivodsync/internal/services/transcripts/domain"
	"ivodsync/internal/services/transcripts/repo"

	"github.com/go-playground/validator/v10"
)

// envelopeVersion is bumped when the backup shape changes
const envelopeVersion = "1.0"

// Metadata describes one backup file
type Metadata struct {
	BackupTime  string `json:"backup_time" validate:"required"`
	DBBackend   string `json:"db_backend" validate:"required"`
	RecordCount int    `json:"record_count" validate:"min=0"`
	Version     string `json:"version" validate:"required"`
}

// Envelope is the backup file shape
type Envelope struct {
	Metadata Metadata `json:"metadata" validate:"required"`
	Data     []Record `json:"data" validate:"required"`
}

// Record is one transcript row in backup form. Pointer fields distinguish
// absent values from empty ones
type Record struct {
	IVODID         int64    `json:"ivod_id"`
	IVODURL        string   `json:"ivod_url"`
	Date           string   `json:"date"`
	MeetingCode    string   `json:"meeting_code"`
	MeetingCodeStr string   `json:"meeting_code_str"`
	MeetingName    string   `json:"meeting_name"`
	MeetingTime    *string  `json:"meeting_time"`
	Title          string   `json:"title"`
	SpeakerName    string   `json:"speaker_name"`
	VideoLength    string   `json:"video_length"`
	VideoStart     string   `json:"video_start"`
	VideoEnd       string   `json:"video_end"`
	VideoType      string   `json:"video_type"`
	Category       string   `json:"category"`
	VideoURL       string   `json:"video_url"`
	CommitteeNames []string `json:"committee_names"`
	AITranscript   string   `json:"ai_transcript"`
	AIStatus       string   `json:"ai_status"`
	AIRetries      int      `json:"ai_retries"`
	LYTranscript   string   `json:"ly_transcript"`
	LYStatus       string   `json:"ly_status"`
	LYRetries      int      `json:"ly_retries"`
	LastUpdated    string   `json:"last_updated"`
}

// RestoreOptions gate the destructive parts of a restore
type RestoreOptions struct {
	ForceCreate bool
	ForceClear  bool
	// Confirm asks the operator a yes/no question; nil means always no
	Confirm func(prompt string) bool
}

// Service runs backups and restores against the transcript store
type Service struct {
	st       *store.Store
	binder   repo.Binder
	validate *validator.Validate
	log      logger.Logger
}

// New builds a backup Service over st
func New(st *store.Store) *Service {
	return &Service{
		st:       st,
		binder:   repo.New(st.Dialect),
		validate: validator.New(),
		log:      *logger.Named("backup"),
	}
}

func (s *Service) storage() repo.Storage { return s.binder.Bind(s.st.DB) }

// Dump writes every stored record to path and returns the file written.
// An empty path picks backup/ivod_backup_<timestamp>.json; an empty table
// writes nothing and returns ""
func (s *Service) Dump(ctx context.Context, path string) (string, error) {
	rows, err := s.storage().ListAll(ctx)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		s.log.Warn().Msg("no records to back up")
		return "", nil
	}

	if path == "" {
		path = fmt.Sprintf("backup/ivod_backup_%s.json", clock.Now().Format("20060102_150405"))
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "create backup dir %s", dir)
		}
	}

	env := Envelope{
		Metadata: Metadata{
			BackupTime:  clock.Now().Format(time.RFC3339),
			DBBackend:   s.st.Dialect.Name(),
			RecordCount: len(rows),
			Version:     envelopeVersion,
		},
		Data: make([]Record, len(rows)),
	}
	for i := range rows {
		env.Data[i] = recordOf(&rows[i])
	}

	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeUnknown, "encode backup")
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", perr.Wrapf(err, perr.ErrorCodeUnknown, "write backup %s", path)
	}

	s.log.Info().Str("path", path).Int("records", len(rows)).Msg("backup written")
	return path, nil
}

// Restore loads the envelope at path into the store. Creating a missing
// table and clearing existing rows each require the matching force flag or
// operator confirmation. Per-record decode problems are counted, not fatal
func (s *Service) Restore(ctx context.Context, path string, opts RestoreOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeNotFound, "read backup %s", path)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return perr.Parsingf("decode backup %s: %v", path, err)
	}
	if err := s.validate.Struct(env); err != nil {
		return perr.Configf("backup %s is not a valid envelope: %v", path, err)
	}

	s.log.Info().
		Str("backup_time", env.Metadata.BackupTime).
		Str("db_backend", env.Metadata.DBBackend).
		Int("records", env.Metadata.RecordCount).
		Str("version", env.Metadata.Version).
		Msg("restoring backup")

	st := s.storage()
	exists, err := st.TableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if !opts.ForceCreate && !confirm(opts, "Transcript table does not exist. Create it? (y/N): ") {
			return perr.Interruptedf("restore cancelled: table creation declined")
		}
		if err := st.EnsureTable(ctx); err != nil {
			return err
		}
	}

	existing, err := st.Count(ctx)
	if err != nil {
		return err
	}
	if existing > 0 {
		s.log.Warn().Int64("existing", existing).Msg("store already holds records")
		if !opts.ForceClear && !confirm(opts, fmt.Sprintf("Clear %d existing records? (y/N): ", existing)) {
			return perr.Interruptedf("restore cancelled: data clear declined")
		}
		if err := st.DeleteAll(ctx); err != nil {
			return err
		}
	}

	restored, failed := 0, 0
	err = s.st.DB.Tx(ctx, func(q store.RowQuerier) error {
		txStore := s.binder.Bind(q)
		for i := range env.Data {
			rec, err := transcriptOf(&env.Data[i])
			if err != nil {
				s.log.Error().Err(err).Int64("ivod_id", env.Data[i].IVODID).Msg("skipping unrestorable record")
				failed++
				continue
			}
			if err := txStore.Upsert(ctx, rec); err != nil {
				s.log.Error().Err(err).Int64("ivod_id", rec.IVODID).Msg("restore write failed")
				failed++
				continue
			}
			restored++
		}
		return nil
	})
	if err != nil {
		return perr.FromDBf(err, "restore %d records", len(env.Data))
	}

	s.log.Info().Int("restored", restored).Int("failed", failed).Msg("restore complete")
	return nil
}

func confirm(opts RestoreOptions, prompt string) bool {
	return opts.Confirm != nil && opts.Confirm(prompt)
}

// recordOf converts a stored transcript into backup form
func recordOf(t *domain.Transcript) Record {
	r := Record{
		IVODID:         t.IVODID,
		IVODURL:        t.IVODURL,
		Date:           clock.FormatDate(t.Date),
		MeetingCode:    t.MeetingCode,
		MeetingCodeStr: t.MeetingCodeStr,
		MeetingName:    t.MeetingName,
		Title:          t.Title,
		SpeakerName:    t.SpeakerName,
		VideoLength:    t.VideoLength,
		VideoStart:     t.VideoStart,
		VideoEnd:       t.VideoEnd,
		VideoType:      t.VideoType,
		Category:       t.Category,
		VideoURL:       t.VideoURL,
		CommitteeNames: t.CommitteeNames,
		AITranscript:   t.AITranscript,
		AIStatus:       string(t.AIStatus),
		AIRetries:      t.AIRetries,
		LYTranscript:   t.LYTranscript,
		LYStatus:       string(t.LYStatus),
		LYRetries:      t.LYRetries,
		LastUpdated:    t.LastUpdated.Format(time.RFC3339),
	}
	if t.MeetingTime != nil {
		mt := t.MeetingTime.Format(time.RFC3339)
		r.MeetingTime = &mt
	}
	return r
}

// transcriptOf converts a backup record back into domain form
func transcriptOf(r *Record) (*domain.Transcript, error) {
	date, err := clock.ParseDate(r.Date)
	if err != nil {
		return nil, err
	}

	t := &domain.Transcript{
		IVODID:         r.IVODID,
		IVODURL:        r.IVODURL,
		Date:           date,
		MeetingCode:    r.MeetingCode,
		MeetingCodeStr: r.MeetingCodeStr,
		MeetingName:    r.MeetingName,
		Title:          r.Title,
		SpeakerName:    r.SpeakerName,
		VideoLength:    r.VideoLength,
		VideoStart:     r.VideoStart,
		VideoEnd:       r.VideoEnd,
		VideoType:      r.VideoType,
		Category:       r.Category,
		VideoURL:       r.VideoURL,
		CommitteeNames: r.CommitteeNames,
		AITranscript:   r.AITranscript,
		AIStatus:       domain.Status(r.AIStatus),
		AIRetries:      r.AIRetries,
		LYTranscript:   r.LYTranscript,
		LYStatus:       domain.Status(r.LYStatus),
		LYRetries:      r.LYRetries,
	}

	if r.MeetingTime != nil && *r.MeetingTime != "" {
		mt, err := parseStamp(*r.MeetingTime)
		if err != nil {
			return nil, perr.Parsingf("meeting_time %q: %v", *r.MeetingTime, err)
		}
		t.MeetingTime = &mt
	}

	if r.LastUpdated != "" {
		lu, err := parseStamp(r.LastUpdated)
		if err != nil {
			return nil, perr.Parsingf("last_updated %q: %v", r.LastUpdated, err)
		}
		t.LastUpdated = lu
	} else {
		t.LastUpdated = clock.Now()
	}
	return t, nil
}

// parseStamp accepts both offset-carrying and naive ISO timestamps; naive
// ones are taken as Taipei wall clock
func parseStamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, clock.Taipei)
}

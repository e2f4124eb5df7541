// Package repo maps domain records onto store buckets.
package repo

import (
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"

	"huddle/internal/domain"
	"huddle/internal/store"
)

var codec = sonic.ConfigStd

// Repo reads and writes typed records inside one store transaction.
type Repo struct {
	Tx store.Tx
	// Corrupt is called for records that fail to decode while listing. Those records are skipped.
	Corrupt func(bucket store.Bucket, id string, err error)
}

func New(tx store.Tx) Repo { return Repo{Tx: tx} }

func encode(v any) ([]byte, error) {
	data, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

func decode(b store.Bucket, id string, data []byte, v any) error {
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s/%s: corrupt record: %w: %v", b, id, domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (r Repo) corrupt(b store.Bucket, id string, err error) {
	if r.Corrupt != nil {
		r.Corrupt(b, id, err)
	}
}

// listDecoded decodes every record in b with fn, skipping the ones that fail.
func (r Repo) listDecoded(b store.Bucket, fn func(rec store.Record) error) error {
	recs, err := r.Tx.List(b)
	if err != nil {
		return err
	}
	for _, rec := range recs {
		if err := fn(rec); err != nil {
			r.corrupt(b, rec.ID, err)
		}
	}
	return nil
}

// Messages

func (r Repo) InsertMessage(m domain.Message) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	return r.Tx.Create(store.BucketMessages, m.ID, data)
}

// MessagesFor returns the messages addressed to agent, oldest first.
func (r Repo) MessagesFor(agent string) ([]domain.Message, error) {
	var out []domain.Message
	err := r.listDecoded(store.BucketMessages, func(rec store.Record) error {
		var m domain.Message
		if err := decode(store.BucketMessages, rec.ID, rec.Data, &m); err != nil {
			return err
		}
		if m.ID == "" {
			m.ID = rec.ID
		}
		if m.ToAgent == agent {
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMessages(out)
	return out, nil
}

func (r Repo) DeleteMessage(id string) error {
	return r.Tx.Delete(store.BucketMessages, id)
}

func sortMessages(ms []domain.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		if !ms[i].Timestamp.Equal(ms[j].Timestamp) {
			return ms[i].Timestamp.Before(ms[j].Timestamp)
		}
		return ms[i].ID < ms[j].ID
	})
}

// Supervisory inbox

func (r Repo) InsertApproval(m domain.Message) error {
	data, err := encode(m)
	if err != nil {
		return err
	}
	return r.Tx.Create(store.BucketInbox, m.ID, data)
}

func (r Repo) GetApproval(id string) (domain.Message, error) {
	var m domain.Message
	data, err := r.Tx.Get(store.BucketInbox, id)
	if err != nil {
		return m, err
	}
	if err := decode(store.BucketInbox, id, data, &m); err != nil {
		return m, err
	}
	if m.ID == "" {
		m.ID = id
	}
	return m, nil
}

func (r Repo) DeleteApproval(id string) error {
	return r.Tx.Delete(store.BucketInbox, id)
}

func (r Repo) ListApprovals() ([]domain.Message, error) {
	var out []domain.Message
	err := r.listDecoded(store.BucketInbox, func(rec store.Record) error {
		var m domain.Message
		if err := decode(store.BucketInbox, rec.ID, rec.Data, &m); err != nil {
			return err
		}
		if m.ID == "" {
			m.ID = rec.ID
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMessages(out)
	return out, nil
}

// Decisions

func (r Repo) InsertDecision(d domain.Decision) error {
	data, err := encode(d)
	if err != nil {
		return err
	}
	return r.Tx.Create(store.BucketDecisions, d.ID, data)
}

func (r Repo) ListDecisions() ([]domain.Decision, error) {
	var out []domain.Decision
	err := r.listDecoded(store.BucketDecisions, func(rec store.Record) error {
		var d domain.Decision
		if err := decode(store.BucketDecisions, rec.ID, rec.Data, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DecidedAt.Before(out[j].DecidedAt) })
	return out, nil
}

// Agent status

func (r Repo) PutStatus(st domain.AgentStatus) error {
	data, err := encode(st)
	if err != nil {
		return err
	}
	return r.Tx.Put(store.BucketStatus, st.Agent, data)
}

func (r Repo) ListStatus() ([]domain.AgentStatus, error) {
	var out []domain.AgentStatus
	err := r.listDecoded(store.BucketStatus, func(rec store.Record) error {
		var st domain.AgentStatus
		if err := decode(store.BucketStatus, rec.ID, rec.Data, &st); err != nil {
			return err
		}
		if st.Agent == "" {
			st.Agent = rec.ID
		}
		out = append(out, st)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}

// Notifications

func (r Repo) InsertNotification(n domain.Notification) error {
	data, err := encode(n)
	if err != nil {
		return err
	}
	return r.Tx.Create(store.BucketNotifications, n.ID, data)
}

// ListNotifications returns notifications newest first.
func (r Repo) ListNotifications() ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.listDecoded(store.BucketNotifications, func(rec store.Record) error {
		var n domain.Notification
		if err := decode(store.BucketNotifications, rec.ID, rec.Data, &n); err != nil {
			return err
		}
		if n.ID == "" {
			n.ID = rec.ID
		}
		out = append(out, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Reports

const reportPrefix = "daily_"

func ReportID(date string) string { return reportPrefix + date }

func (r Repo) PutReport(rep domain.Report) error {
	data, err := encode(rep)
	if err != nil {
		return err
	}
	return r.Tx.Put(store.BucketReports, ReportID(rep.Date), data)
}

func (r Repo) GetReport(date string) (domain.Report, error) {
	var rep domain.Report
	id := ReportID(date)
	data, err := r.Tx.Get(store.BucketReports, id)
	if err != nil {
		return rep, err
	}
	err = decode(store.BucketReports, id, data, &rep)
	return rep, err
}

// ReportDates lists the dates with a stored daily report, oldest first.
func (r Repo) ReportDates() ([]string, error) {
	recs, err := r.Tx.List(store.BucketReports)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, rec := range recs {
		if len(rec.ID) > len(reportPrefix) && rec.ID[:len(reportPrefix)] == reportPrefix {
			out = append(out, rec.ID[len(reportPrefix):])
		}
	}
	return out, nil
}

// Product specs

func (r Repo) PutSpec(s domain.ProductSpec) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return r.Tx.Put(store.BucketSpecs, s.Name, data)
}

func (r Repo) GetSpec(name string) (domain.ProductSpec, error) {
	var s domain.ProductSpec
	data, err := r.Tx.Get(store.BucketSpecs, name)
	if err != nil {
		return s, err
	}
	if err := decode(store.BucketSpecs, name, data, &s); err != nil {
		return s, err
	}
	if s.Name == "" {
		s.Name = name
	}
	return s, nil
}

func (r Repo) ListSpecs() ([]domain.ProductSpec, error) {
	var out []domain.ProductSpec
	err := r.listDecoded(store.BucketSpecs, func(rec store.Record) error {
		var s domain.ProductSpec
		if err := decode(store.BucketSpecs, rec.ID, rec.Data, &s); err != nil {
			return err
		}
		if s.Name == "" {
			s.Name = rec.ID
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// SameDay reports whether t falls on date (YYYY-MM-DD) in loc.
func SameDay(t time.Time, date string, loc *time.Location) bool {
	return t.In(loc).Format(time.DateOnly) == date
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"uptime-sentry/internal/db"
)

// RedisStore persists monitors as JSON documents with set-backed indexes
// and capped history lists.
//
// Key layout:
//
//	monitors:ids                 set of all monitor ids
//	owner:<ownerID>:monitors     set of the owner's monitor ids
//	monitor:<id>                 monitor document (JSON)
//	monitor:<id>:checks          list of CheckResult JSON, newest first
//	monitor:<id>:incidents       list of Incident JSON, newest first
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func monitorKey(id string) string   { return "monitor:" + id }
func checksKey(id string) string    { return "monitor:" + id + ":checks" }
func incidentsKey(id string) string { return "monitor:" + id + ":incidents" }
func ownerKey(ownerID string) string {
	return "owner:" + ownerID + ":monitors"
}

func (s *RedisStore) CreateMonitor(ctx context.Context, m *db.Monitor) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, monitorKey(m.ID), data, 0)
	pipe.SAdd(ctx, "monitors:ids", m.ID)
	pipe.SAdd(ctx, ownerKey(m.OwnerID), m.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetMonitor(ctx context.Context, id string) (*db.Monitor, error) {
	data, err := s.rdb.Get(ctx, monitorKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m db.Monitor
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) UpdateMonitor(ctx context.Context, m *db.Monitor) error {
	if _, err := s.GetMonitor(ctx, m.ID); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, monitorKey(m.ID), data, 0).Err()
}

func (s *RedisStore) DeleteMonitor(ctx context.Context, id string) error {
	m, err := s.GetMonitor(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, monitorKey(id), checksKey(id), incidentsKey(id))
	pipe.SRem(ctx, "monitors:ids", id)
	pipe.SRem(ctx, ownerKey(m.OwnerID), id)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListMonitors(ctx context.Context, ownerID string) ([]*db.Monitor, error) {
	ids, err := s.rdb.SMembers(ctx, ownerKey(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	return s.fetchMonitors(ctx, ids)
}

func (s *RedisStore) ListAllMonitors(ctx context.Context) ([]*db.Monitor, error) {
	ids, err := s.rdb.SMembers(ctx, "monitors:ids").Result()
	if err != nil {
		return nil, err
	}
	return s.fetchMonitors(ctx, ids)
}

// fetchMonitors loads monitor documents with one pipelined round-trip.
func (s *RedisStore) fetchMonitors(ctx context.Context, ids []string) ([]*db.Monitor, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, pipe.Get(ctx, monitorKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	monitors := make([]*db.Monitor, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			// Stale index entry, skip this monitor.
			continue
		}
		var m db.Monitor
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("[REDIS] skipping undecodable monitor document: %v", err)
			continue
		}
		monitors = append(monitors, &m)
	}
	return monitors, nil
}

func (s *RedisStore) AppendCheckResult(ctx context.Context, r *db.CheckResult) error {
	exists, err := s.rdb.Exists(ctx, monitorKey(r.MonitorID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, checksKey(r.MonitorID), data)
	pipe.LTrim(ctx, checksKey(r.MonitorID), 0, MaxCheckHistory-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*db.CheckResult, error) {
	stop := int64(limit - 1)
	if limit <= 0 {
		stop = -1
	}
	raw, err := s.rdb.LRange(ctx, checksKey(monitorID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*db.CheckResult, 0, len(raw))
	for _, entry := range raw {
		var r db.CheckResult
		if err := json.Unmarshal([]byte(entry), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

func (s *RedisStore) AppendIncident(ctx context.Context, in *db.Incident) error {
	exists, err := s.rdb.Exists(ctx, monitorKey(in.MonitorID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, incidentsKey(in.MonitorID), data)
	pipe.LTrim(ctx, incidentsKey(in.MonitorID), 0, MaxIncidentHistory-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) UpdateIncident(ctx context.Context, in *db.Incident) error {
	raw, err := s.rdb.LRange(ctx, incidentsKey(in.MonitorID), 0, -1).Result()
	if err != nil {
		return err
	}
	for i, entry := range raw {
		var existing db.Incident
		if err := json.Unmarshal([]byte(entry), &existing); err != nil {
			continue
		}
		if existing.ID != in.ID {
			continue
		}
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		return s.rdb.LSet(ctx, incidentsKey(in.MonitorID), int64(i), data).Err()
	}
	return ErrNotFound
}

func (s *RedisStore) OpenIncident(ctx context.Context, monitorID string) (*db.Incident, error) {
	raw, err := s.rdb.LRange(ctx, incidentsKey(monitorID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	for _, entry := range raw {
		var in db.Incident
		if err := json.Unmarshal([]byte(entry), &in); err != nil {
			continue
		}
		if in.Status == db.IncidentOpen {
			return &in, nil
		}
	}
	return nil, ErrNotFound
}

func (s *RedisStore) ListIncidents(ctx context.Context, monitorID string, limit int) ([]*db.Incident, error) {
	stop := int64(limit - 1)
	if limit <= 0 {
		stop = -1
	}
	raw, err := s.rdb.LRange(ctx, incidentsKey(monitorID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*db.Incident, 0, len(raw))
	for _, entry := range raw {
		var in db.Incident
		if err := json.Unmarshal([]byte(entry), &in); err != nil {
			continue
		}
		out = append(out, &in)
	}
	return out, nil
}

var _ Store = (*RedisStore)(nil)

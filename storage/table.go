package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"unicode/utf16"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"tasktracker/domain"
)

const (
	snapshotPartition = "tasks"
	// Table string properties are capped at 64 KiB of UTF-16.
	maxTableSnapshotBytes = 64 * 1024
)

var errSnapshotTooLarge = errors.New("snapshot exceeds table property limit")

// TableStore keeps the snapshot in one Azure Table entity, keyed by the
// slot key.
type TableStore struct {
	client *aztables.Client
	key    string
	logger *log.Logger
}

type snapshotEntity struct {
	aztables.Entity
	Snapshot string `json:"Snapshot"`
}

// NewTableStore connects to the table named table using a storage
// connection string (Azurite works for local use).
func NewTableStore(connStr, table, key string, logger *log.Logger) (*TableStore, error) {
	if table == "" {
		return nil, errors.New("table name required")
	}
	if key == "" {
		key = DefaultKey
	}
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Second * 30,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{client: svc.NewClient(table), key: key, logger: logger}, nil
}

// EnsureTable creates the table, treating an existing table as success.
func (s *TableStore) EnsureTable(ctx context.Context) error {
	if _, err := s.client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	s.logger.Info("snapshot table created")
	return nil
}

func (s *TableStore) Load(ctx context.Context) ([]domain.Task, error) {
	resp, err := s.client.GetEntity(ctx, snapshotPartition, s.key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get snapshot entity: %w", err)
	}
	raw, err := decodeSnapshotEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	tasks, dropped, err := decodeSnapshot(raw)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		s.logger.WithFields(log.Fields{"key": s.key, "dropped": dropped}).Warn("dropped invalid task records from snapshot")
	}
	return tasks, nil
}

func (s *TableStore) Save(ctx context.Context, tasks []domain.Task) error {
	data, err := EncodeSnapshot(tasks)
	if err != nil {
		return err
	}
	payload, err := snapshotEntityPayload(s.key, data)
	if err != nil {
		return err
	}
	_, err = s.client.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		return fmt.Errorf("upsert snapshot entity: %w", err)
	}
	return nil
}

func snapshotEntityPayload(key string, snapshot []byte) ([]byte, error) {
	if n := utf16Size(string(snapshot)); n > maxTableSnapshotBytes {
		return nil, fmt.Errorf("%w: %d bytes as UTF-16", errSnapshotTooLarge, n)
	}
	ent := map[string]any{
		"PartitionKey": snapshotPartition,
		"RowKey":       key,
		"Snapshot":     string(snapshot),
	}
	return sonic.ConfigStd.Marshal(ent)
}

// utf16Size is the encoded size of s in UTF-16, the form the table
// service measures property limits in.
func utf16Size(s string) int {
	units := 0
	for _, r := range s {
		if utf16.RuneLen(r) == 2 {
			units += 2
		} else {
			units++
		}
	}
	return units * 2
}

func decodeSnapshotEntity(data []byte) ([]byte, error) {
	var ent snapshotEntity
	if err := sonic.ConfigStd.Unmarshal(data, &ent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return []byte(ent.Snapshot), nil
}

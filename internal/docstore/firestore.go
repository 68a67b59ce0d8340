package docstore

import (
	"context"
	"errors"
	"os"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/printrelay/backend/internal/faults"
)

// FirestoreOptions configures the managed document store.
type FirestoreOptions struct {
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	CredentialsJSON string
}

// FirestoreStore implements Gateway on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore authenticates with a service-account key and returns a
// gateway. Missing or malformed credentials yield a *faults.CredentialError.
func NewFirestoreStore(ctx context.Context, opts FirestoreOptions) (*FirestoreStore, error) {
	projectID := opts.ProjectID
	var clientOpts []option.ClientOption

	if os.Getenv("FIRESTORE_EMULATOR_HOST") != "" {
		if projectID == "" {
			projectID = "demo-printrelay"
		}
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	} else {
		raw, sa, err := LoadCredentials(opts.CredentialsJSON, opts.CredentialsFile)
		if err != nil {
			return nil, err
		}
		if projectID == "" {
			projectID = sa.ProjectID
		}
		clientOpts = append(clientOpts, option.WithCredentialsJSON(raw))
	}

	var (
		client *firestore.Client
		err    error
	)
	if opts.DatabaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, opts.DatabaseID, clientOpts...)
	} else {
		client, err = firestore.NewClient(ctx, projectID, clientOpts...)
	}
	if err != nil {
		return nil, &faults.CredentialError{Source: "firestore", Reason: "cannot create client", Err: err}
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := checkKey("put", collection, id); err != nil {
		return err
	}
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, fields)
	return classifyRPC("put", err)
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	if err := checkKey("get", collection, id); err != nil {
		return nil, err
	}
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, notFound("get", collection, id)
		}
		return nil, classifyRPC("get", err)
	}
	if !snap.Exists() {
		return nil, notFound("get", collection, id)
	}
	return snap.Data(), nil
}

func (s *FirestoreStore) BatchPut(ctx context.Context, collection string, docs []Document) error {
	if err := checkBatch("batch_put", docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	coll := s.client.Collection(collection)
	batch := s.client.Batch()
	for _, d := range docs {
		batch.Set(coll.Doc(d.ID), d.Fields)
	}
	_, err := batch.Commit(ctx)
	return classifyRPC("batch_put", err)
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// classifyRPC maps gRPC status codes onto retry kinds.
func classifyRPC(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return faults.Wrap(faults.Permanent, op, err)
	}
	switch status.Code(err) {
	case codes.NotFound:
		return faults.Wrap(faults.NotFound, op, errors.Join(faults.ErrNotFound, err))
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated,
		codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented, codes.Canceled:
		return faults.Wrap(faults.Permanent, op, err)
	default:
		return faults.Wrap(faults.Transient, op, err)
	}
}

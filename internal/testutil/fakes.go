package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/civicvoice/backend/internal/models"
	"github.com/civicvoice/backend/internal/services"
)

// FakeIdentity records management calls instead of reaching the provider.
type FakeIdentity struct {
	mu      sync.Mutex
	Users   map[string]*models.IdentityProfile // keyed by subject
	Updated map[string]string
	Deleted []string
	Created []string
	Err     error
}

func NewFakeIdentity() *FakeIdentity {
	return &FakeIdentity{
		Users:   map[string]*models.IdentityProfile{},
		Updated: map[string]string{},
	}
}

func (f *FakeIdentity) GetUser(ctx context.Context, subject string) (*models.IdentityProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p, ok := f.Users[subject]
	if !ok {
		return nil, services.ErrNotFound
	}
	return p, nil
}

func (f *FakeIdentity) CreateUser(ctx context.Context, email, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	subject := "fake|" + strings.ToLower(email)
	f.Created = append(f.Created, email)
	f.Users[subject] = &models.IdentityProfile{Subject: subject, Email: email, Name: name}
	return subject, nil
}

func (f *FakeIdentity) UpdateName(ctx context.Context, subject, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Updated[subject] = name
	return nil
}

func (f *FakeIdentity) DeleteUser(ctx context.Context, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Deleted = append(f.Deleted, subject)
	return nil
}

type FakeMailingList struct {
	mu      sync.Mutex
	Members map[string]services.Member
	Deleted []string
	Err     error
}

func NewFakeMailingList() *FakeMailingList {
	return &FakeMailingList{Members: map[string]services.Member{}}
}

func (f *FakeMailingList) Upsert(ctx context.Context, m services.Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Members[strings.ToLower(m.Email)] = m
	return nil
}

func (f *FakeMailingList) Delete(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	delete(f.Members, strings.ToLower(email))
	f.Deleted = append(f.Deleted, email)
	return nil
}

type FakeMailer struct {
	mu   sync.Mutex
	Sent []services.Message
	Err  error
}

func (f *FakeMailer) Send(ctx context.Context, msg services.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Sent = append(f.Sent, msg)
	return nil
}

func (f *FakeMailer) Messages() []services.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]services.Message, len(f.Sent))
	copy(out, f.Sent)
	return out
}

type FakeNotifier struct {
	mu    sync.Mutex
	Texts []string
	Err   error
}

func (f *FakeNotifier) Notify(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Texts = append(f.Texts, text)
	return nil
}

// FakeCaptcha accepts exactly the configured token.
type FakeCaptcha struct {
	Token string
}

func (f *FakeCaptcha) Verify(ctx context.Context, token, remoteIP string) (bool, string, error) {
	if token == f.Token {
		return true, "", nil
	}
	return false, "invalid-input-response", nil
}

// FakeMedia keeps objects as metadata maps keyed by bucket/name.
type FakeMedia struct {
	mu      sync.Mutex
	Objects map[string]map[string]string
	Deleted []string
}

func NewFakeMedia() *FakeMedia {
	return &FakeMedia{Objects: map[string]map[string]string{}}
}

func (f *FakeMedia) Put(bucket, name string, metadata map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[bucket+"/"+name] = metadata
}

func (f *FakeMedia) Has(bucket, name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.Objects[bucket+"/"+name]
	return ok
}

func (f *FakeMedia) Metadata(ctx context.Context, bucket, name string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	md, ok := f.Objects[bucket+"/"+name]
	if !ok {
		return nil, services.ErrNotFound
	}
	return md, nil
}

func (f *FakeMedia) Promote(ctx context.Context, bucket, name string, metadata map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := bucket + "/" + name
	md, ok := f.Objects[key]
	if !ok {
		return "", services.ErrNotFound
	}
	delete(f.Objects, key)
	final := strings.TrimPrefix(name, services.PendingPrefix)
	f.Objects[bucket+"/"+final] = md
	return services.DownloadURL(bucket, final, "token"), nil
}

func (f *FakeMedia) Delete(ctx context.Context, bucket, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Objects, bucket+"/"+name)
	f.Deleted = append(f.Deleted, name)
	return nil
}

// FakeClassifier returns Result for every image.
type FakeClassifier struct {
	Result services.SafeSearchResult
	URIs   []string
}

func (f *FakeClassifier) DetectSafeSearch(ctx context.Context, uri string) (*services.SafeSearchResult, error) {
	f.URIs = append(f.URIs, uri)
	res := f.Result
	return &res, nil
}

package bootstrap

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/dispatch/internal/config"
	"github.com/ignite/dispatch/internal/domain"
	"github.com/ignite/dispatch/internal/events"
	"github.com/ignite/dispatch/internal/token"
)

func TestRegistryFromConfig(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	reg, err := Registry(db, []config.ContentTypeConfig{
		{Name: "newsletter.issue", Table: "issues", KeyColumn: "id", IntegerKeys: true, SubjectColumn: "title"},
		{Name: "blog.post", Table: "posts", KeyColumn: "slug"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"blog.post", "newsletter.issue"}, reg.RegisteredTypes())

	_, err = Registry(db, []config.ContentTypeConfig{{Name: "x", Table: "bad table"}})
	assert.Error(t, err)
}

func TestSenderSelection(t *testing.T) {
	s, err := Sender(context.Background(), config.DeliveryConfig{Transport: "log"})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportLog, s.Type())

	s, err = Sender(context.Background(), config.DeliveryConfig{
		Transport: "smtp",
		SMTP:      config.SMTPConfig{Host: "smtp.example.com", Port: 587},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransportSMTP, s.Type())

	_, err = Sender(context.Background(), config.DeliveryConfig{Transport: "pigeon"})
	assert.Error(t, err)
}

func TestPublisherDisabledWithoutQueue(t *testing.T) {
	p, err := Publisher(context.Background(), config.EventsConfig{})
	require.NoError(t, err)
	assert.IsType(t, events.NopPublisher{}, p)
}

func TestOpenRedis(t *testing.T) {
	assert.Nil(t, OpenRedis(context.Background(), config.RedisConfig{}))

	mr := miniredis.RunT(t)
	client := OpenRedis(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewServices(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewServices(db, nil, "", nil)
	assert.ErrorIs(t, err, token.ErrEmptySecret)

	svc, err := NewServices(db, nil, "secret", events.NopPublisher{})
	require.NoError(t, err)
	assert.NotNil(t, svc.Dispatches)
	assert.NotNil(t, svc.Recipients)
	assert.NotNil(t, svc.Tokens)
}

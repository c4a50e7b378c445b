// Package pubsub publishes domain events to a single Google Pub/Sub topic.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("domain topic is required")
	errClosed            = errors.New("pubsub client is not open")
)

// Client owns the Pub/Sub connection and the publisher for the domain topic.
// The topic must already exist; the client never creates it.
type Client struct {
	raw       *pubsub.Client
	topic     string
	publisher *pubsub.Publisher
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topic := TopicResourceName(project, cfg.DomainTopic)
	if topic == "" {
		return nil, errNoTopic
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	raw, err := pubsub.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}

	c := &Client{raw: raw, topic: topic, publisher: raw.Publisher(topic)}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub.ready")
	}
	return c, nil
}

// Ping confirms the domain topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errClosed
	}
	_, err := c.raw.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", c.topic)
	default:
		return fmt.Errorf("get topic %s: %w", c.topic, err)
	}
}

// Send publishes msg and blocks until the server acknowledges it.
func (c *Client) Send(ctx context.Context, msg *pubsub.Message) error {
	if c == nil || c.publisher == nil {
		return errClosed
	}
	_, err := c.publisher.Publish(ctx, msg).Get(ctx)
	return err
}

// DomainTopic is the full resource name messages are sent to.
func (c *Client) DomainTopic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

// Close flushes pending messages before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.raw.Close()
}

// TopicResourceName expands a bare topic ID to projects/<p>/topics/<id>.
func TopicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/topics/" + n
}

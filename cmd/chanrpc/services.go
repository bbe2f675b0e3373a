package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service paths shared by both ends.
const (
	notifierPath = "chanrpc.Notifier"
	clockPath    = "chanrpc.Clock"
	notifierKey  = "notifier"
)

// Notice is what the server pushes to a connected client.
type Notice struct {
	Seq  int
	Text string
	Sent time.Time
}

type Ack struct {
	Seq      int
	Receiver string
}

// Notifier is the callback service a dialing client hosts.
type Notifier struct {
	name   string
	logger *zap.Logger
}

func (n *Notifier) Notify(args *Notice, reply *Ack) error {
	if args.Text == "" {
		return fmt.Errorf("empty notice %d", args.Seq)
	}
	n.logger.Info("notice", zap.Int("seq", args.Seq), zap.String("text", args.Text), zap.Duration("latency", time.Since(args.Sent)))
	reply.Seq = args.Seq
	reply.Receiver = n.name
	return nil
}

// Clock is served by the server so clients have something to call.
type Clock struct{}

type NowArgs struct {
	Zone string
}

func (c *Clock) Now(args *NowArgs, reply *time.Time) error {
	now := time.Now()
	if args.Zone != "" {
		loc, err := time.LoadLocation(args.Zone)
		if err != nil {
			return err
		}
		now = now.In(loc)
	}
	*reply = now
	return nil
}

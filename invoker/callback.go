package invoker

import (
	"reflect"
	"sync"

	"chan-rpc/channel"
)

// callbackMu serializes refer/release so two goroutines referring the same callback on one
// channel end up sharing a single invoker.
var callbackMu sync.Mutex

func callbackAttr(serviceType reflect.Type, key string) string {
	return "callback.invoker." + ServiceName(serviceType) + "." + key
}

// ReferCallback returns the invoker for the callback identified by (serviceType, key) on ch,
// creating it on first use. The invoker is stored in the channel's attributes, so it lives
// exactly as long as the connection.
func ReferCallback(ch channel.Channel, serviceType reflect.Type, key string, opts ...Option) *ChannelInvoker {
	attr := callbackAttr(serviceType, key)

	callbackMu.Lock()
	defer callbackMu.Unlock()
	if inv, ok := ch.Attribute(attr).(*ChannelInvoker); ok {
		return inv
	}
	inv := New(serviceType, ch, key, opts...)
	ch.SetAttribute(attr, inv)
	return inv
}

// ReleaseCallback destroys and forgets the callback invoker, if any. The channel stays open.
func ReleaseCallback(ch channel.Channel, serviceType reflect.Type, key string) bool {
	attr := callbackAttr(serviceType, key)

	callbackMu.Lock()
	defer callbackMu.Unlock()
	inv, ok := ch.Attribute(attr).(*ChannelInvoker)
	if !ok {
		return false
	}
	inv.Destroy()
	ch.RemoveAttribute(attr)
	return true
}

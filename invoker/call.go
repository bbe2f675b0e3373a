package invoker

import (
	"context"
	"reflect"

	"chan-rpc/message"
	"chan-rpc/rpcerr"
)

// Call is the typed convenience around Invoke: it sends args as the single argument of
// method and decodes the reply into reply, which may be nil.
func Call(ctx context.Context, inv Invoker, method string, args, reply any) error {
	var types []string
	if args != nil {
		types = []string{reflect.TypeOf(args).String()}
	}
	res, err := inv.Invoke(ctx, message.NewInvocation(method, types, []any{args}, nil))
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	return rpcerr.Wrap(res.Decode(reply))
}

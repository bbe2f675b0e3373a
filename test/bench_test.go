package test

import (
	"context"
	"testing"

	"chan-rpc/codec"
	"chan-rpc/invoker"
	"chan-rpc/message"
)

// ---- Benchmark ----

// 场景1: 单 goroutine 串行正向调用
func BenchmarkSerialCall(b *testing.B) {
	_, cli, _ := reverseSetup(b, nil, &Arith{})

	args := &Args{A: 1, B: 2}
	reply := &Reply{}
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := cli.Call(context.Background(), "chan-rpc/test.Arith.Add", args, reply); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 多 goroutine 并发反向调用（同一连接多路复用）
func BenchmarkConcurrentReverseCall(b *testing.B) {
	ch, _, _ := reverseSetup(b, nil, &Arith{})
	inv := invoker.ReferCallback(ch, calculatorType, "bench")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		args := &Args{A: 1, B: 2}
		reply := &Reply{}
		for pb.Next() {
			if err := invoker.Call(context.Background(), inv, "Add", args, reply); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

func benchmarkCodec(b *testing.B, t codec.CodecType) {
	cdc := codec.GetCodec(t)
	msg := &message.RPCMessage{
		Method:      "Add",
		ParamTypes:  []string{"*test.Args"},
		Attachments: map[string]string{message.PathKey: "chan-rpc/test.Calculator", message.CallbackServiceKey: "bench"},
		Payload:     []byte(`[{"A":1,"B":2}]`),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data, _ := cdc.Encode(msg)
		var out message.RPCMessage
		cdc.Decode(data, &out)
	}
}

// 场景3: 纯编解码性能（不走网络）
func BenchmarkCodecJSON(b *testing.B)    { benchmarkCodec(b, codec.CodecTypeJSON) }
func BenchmarkCodecBinary(b *testing.B)  { benchmarkCodec(b, codec.CodecTypeBinary) }
func BenchmarkCodecMsgpack(b *testing.B) { benchmarkCodec(b, codec.CodecTypeMsgpack) }

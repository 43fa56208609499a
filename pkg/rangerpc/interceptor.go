package rangerpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// LoggingInterceptor logs every unary RPC's method, duration, and error
// kind, the way pkg/api.ReadOnlyInterceptor gates methods by name prefix
// — a single small interceptor attached once at server construction
// rather than scattered per-handler logging.
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("method", info.FullMethod).Dur("elapsed", time.Since(start)).Msg("rangerpc call")

		return resp, err
	}
}

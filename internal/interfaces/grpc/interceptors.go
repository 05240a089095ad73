package grpc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/turtacn/keystore/pkg/logger"
)

// UnaryRecoveryInterceptor 恢复拦截器(捕获 panic)
func UnaryRecoveryInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.Fields{"method": info.FullMethod})
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// StreamRecoveryInterceptor is the streaming counterpart of UnaryRecoveryInterceptor.
func StreamRecoveryInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(ss.Context(), "gRPC stream panic recovered", fmt.Errorf("%v", r),
					logger.Fields{"method": info.FullMethod})
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(srv, ss)
	}
}

// UnaryLoggingInterceptor 日志拦截器
func UnaryLoggingInterceptor(log logger.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		startTime := time.Now()

		resp, err := handler(ctx, req)

		logCompleted(ctx, log, info.FullMethod, startTime, err)
		return resp, err
	}
}

// StreamLoggingInterceptor logs when a stream ends.
func StreamLoggingInterceptor(log logger.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		startTime := time.Now()

		err := handler(srv, ss)

		logCompleted(ss.Context(), log, info.FullMethod, startTime, err)
		return err
	}
}

func logCompleted(ctx context.Context, log logger.Logger, method string, start time.Time, err error) {
	// 提取 Metadata
	md, _ := metadata.FromIncomingContext(ctx)
	var userAgent string
	if agents := md.Get("user-agent"); len(agents) > 0 {
		userAgent = agents[0]
	}

	fields := logger.Fields{
		"method":      method,
		"duration_ms": time.Since(start).Milliseconds(),
		"status":      status.Code(err).String(),
		"user_agent":  userAgent,
	}
	// Health probes are frequent; keep successful ones at debug.
	if err != nil {
		log.Warn(ctx, "gRPC request failed", fields)
		return
	}
	log.Debug(ctx, "gRPC request completed", fields)
}

//Personal.AI order the ending

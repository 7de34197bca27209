package grpc_control

import (
	"context"
	"errors"

	"regatta-live/src/helpers"
	"regatta-live/src/logger"
	"regatta-live/src/race"

	"github.com/goccy/go-json"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ControlService implements RaceControlServer on top of the race registry.
type ControlService struct {
	Registry *race.Registry
	Logger   *logger.Logger
}

// NewControlService creates a new instance of ControlService
func NewControlService(registry *race.Registry, log *logger.Logger) *ControlService {
	return &ControlService{
		Registry: registry,
		Logger:   log,
	}
}

// -----------------------------------------------------------------------------

func (s *ControlService) ListRaces(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	races, err := s.Registry.ListRaces(ctx)
	if err != nil {
		return nil, s.toStatus("ListRaces", err)
	}

	ids := make([]interface{}, len(races))
	for i, id := range races {
		ids[i] = id
	}

	out, err := structpb.NewStruct(map[string]interface{}{"races": ids})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode races: %v", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) GetSnapshot(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "race id is required")
	}

	view, err := s.Registry.Snapshot(ctx, req.GetValue())
	if err != nil {
		return nil, s.toStatus("GetSnapshot", err)
	}

	// Round-trip through JSON so the struct carries the same field names as the HTTP API.
	raw, err := json.Marshal(view)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}

	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) EvictRace(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "race id is required")
	}

	if err := s.Registry.Evict(req.GetValue()); err != nil {
		return nil, s.toStatus("EvictRace", err)
	}
	s.Logger.Info("Race %s evicted by operator", req.GetValue())
	return &emptypb.Empty{}, nil
}

// -----------------------------------------------------------------------------

func (s *ControlService) toStatus(op string, err error) error {
	switch {
	case helpers.IsInvalidInput(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case helpers.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case helpers.IsPersistence(err), errors.Is(err, race.ErrChannelStopped):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.FromContextError(err).Err()
	default:
		s.Logger.Error("%s failed: %v", op, err)
		return status.Error(codes.Internal, err.Error())
	}
}

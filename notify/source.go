package notify

import (
	"context"

	"github.com/onnwee/livegram/twitchapi"
)

// HelixSource adapts the Helix client to the StatusSource interface. Helix
// may briefly report more than one stream row for a channel; the first row is
// the current broadcast.
type HelixSource struct {
	Client *twitchapi.HelixClient
}

func (h HelixSource) ResolveUserID(ctx context.Context, login string) (string, error) {
	return h.Client.GetUserID(ctx, login)
}

func (h HelixSource) GetLiveStatus(ctx context.Context, userID string) (Status, error) {
	streams, err := h.Client.GetStreams(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	if len(streams) == 0 {
		return Status{}, nil
	}
	return Status{Live: true, StreamID: streams[0].ID, Title: streams[0].Title}, nil
}

package keybot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/sadbox/keybot/pkg/relay"
	"github.com/sadbox/keybot/pkg/testutil"
)

const (
	testGuildID   snowflake.ID = 100
	testStaffRole snowflake.ID = 200
	testBotRole   snowflake.ID = 400
	testKeyChan   snowflake.ID = 600
	testSelfID    snowflake.ID = 900
)

type fakeRest struct {
	guildCalls   int
	messageCalls int
	channels     []discord.GuildChannel
	messages     []discord.Message
	guildErr     error
	messagesErr  error
}

func (f *fakeRest) GetGuild(guildID snowflake.ID, _ bool, _ ...rest.RequestOpt) (*discord.RestGuild, error) {
	f.guildCalls++
	if f.guildErr != nil {
		return nil, f.guildErr
	}
	return &discord.RestGuild{Guild: discord.Guild{ID: guildID, Name: "Espresso", OwnerID: 1}}, nil
}

func (f *fakeRest) GetRoles(guildID snowflake.ID, _ ...rest.RequestOpt) ([]discord.Role, error) {
	return []discord.Role{
		{ID: guildID, Name: "@everyone", Permissions: discord.PermissionViewChannel},
		{ID: testStaffRole, Name: "🎓〡Staff"},
		{ID: testBotRole, Name: "keybot"},
	}, nil
}

func (f *fakeRest) GetGuildChannels(_ snowflake.ID, _ ...rest.RequestOpt) ([]discord.GuildChannel, error) {
	return f.channels, nil
}

func (f *fakeRest) GetMember(_ snowflake.ID, userID snowflake.ID, _ ...rest.RequestOpt) (*discord.Member, error) {
	return &discord.Member{User: discord.User{ID: userID}, RoleIDs: []snowflake.ID{testBotRole}}, nil
}

func (f *fakeRest) GetMessages(_ snowflake.ID, _, _, _ snowflake.ID, limit int, _ ...rest.RequestOpt) ([]discord.Message, error) {
	f.messageCalls++
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	if limit < len(f.messages) {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func guildChannel(t *testing.T, raw string) discord.GuildChannel {
	t.Helper()
	var u discord.UnmarshalChannel
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal channel: %v", err)
	}
	ch, ok := u.Channel.(discord.GuildChannel)
	if !ok {
		t.Fatalf("channel %T is not a guild channel", u.Channel)
	}
	return ch
}

func restError(status int) *rest.Error {
	req := httptest.NewRequest(http.MethodGet, "https://discord.com/api/v10/channels/600/messages", nil)
	return &rest.Error{
		Message:  http.StatusText(status),
		Request:  req,
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status), Request: req},
	}
}

func newTestDirectory(src *fakeRest, self snowflake.ID) *directory {
	return newDirectory(src, func() snowflake.ID { return self }, time.Minute, testutil.DiscardLogger())
}

func TestDirectoryGuildSnapshot(t *testing.T) {
	src := &fakeRest{
		channels: []discord.GuildChannel{
			guildChannel(t, `{"id":"600","type":0,"guild_id":"100","name":"🔑〡mod-key","permission_overwrites":[`+
				`{"id":"100","type":0,"allow":"0","deny":"1024"},`+
				`{"id":"900","type":1,"allow":"1024","deny":"0"}]}`),
			guildChannel(t, `{"id":"700","type":2,"guild_id":"100","name":"voice"}`),
		},
	}
	d := newTestDirectory(src, testSelfID)

	g, err := d.Guild(context.Background(), testGuildID)
	if err != nil {
		t.Fatalf("Guild() = %v", err)
	}
	if g.Name != "Espresso" || g.OwnerID != 1 {
		t.Errorf("guild = %+v", g)
	}
	if len(g.Roles) != 3 {
		t.Errorf("len(Roles) = %d, want 3", len(g.Roles))
	}
	if g.Self.UserID != testSelfID || len(g.Self.RoleIDs) != 1 || g.Self.RoleIDs[0] != testBotRole {
		t.Errorf("Self = %+v", g.Self)
	}
	if len(g.Channels) != 1 {
		t.Fatalf("Channels = %+v, want only the text channel", g.Channels)
	}
	ch := g.Channels[0]
	if ch.ID != testKeyChan || ch.Name != "🔑〡mod-key" {
		t.Errorf("channel = %+v", ch)
	}
	if len(ch.Overwrites) != 2 {
		t.Fatalf("Overwrites = %+v", ch.Overwrites)
	}
	if ow := ch.Overwrites[0]; ow.Member || ow.ID != testGuildID || ow.Deny != discord.PermissionViewChannel {
		t.Errorf("role overwrite = %+v", ow)
	}
	if ow := ch.Overwrites[1]; !ow.Member || ow.ID != testSelfID || ow.Allow != discord.PermissionViewChannel {
		t.Errorf("member overwrite = %+v", ow)
	}
	if !relay.CanRead(g, ch, g.Self) {
		t.Error("member overwrite should grant the bot read access")
	}
}

func TestDirectoryChannelsInSidebarOrder(t *testing.T) {
	src := &fakeRest{
		channels: []discord.GuildChannel{
			guildChannel(t, `{"id":"630","type":0,"guild_id":"100","name":"🔑〡mod-key","position":5}`),
			guildChannel(t, `{"id":"620","type":0,"guild_id":"100","name":"🔑〡mod-key","position":2}`),
			guildChannel(t, `{"id":"610","type":0,"guild_id":"100","name":"general","position":2}`),
		},
	}
	d := newTestDirectory(src, testSelfID)

	g, err := d.Guild(context.Background(), testGuildID)
	if err != nil {
		t.Fatalf("Guild() = %v", err)
	}
	var ids []snowflake.ID
	for _, ch := range g.Channels {
		ids = append(ids, ch.ID)
	}
	want := []snowflake.ID{610, 620, 630}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Errorf("channel order = %v, want %v", ids, want)
	}

	ch, ok := g.FindChannel("🔑〡mod-key")
	if !ok || ch.ID != 620 || ch.Position != 2 {
		t.Errorf("FindChannel = %+v, %v, want the topmost duplicate 620", ch, ok)
	}
}

func TestDirectoryCachesAndInvalidates(t *testing.T) {
	src := &fakeRest{}
	d := newTestDirectory(src, testSelfID)
	ctx := context.Background()

	for range 3 {
		if _, err := d.Guild(ctx, testGuildID); err != nil {
			t.Fatalf("Guild() = %v", err)
		}
	}
	if src.guildCalls != 1 {
		t.Errorf("guild fetched %d times, want 1", src.guildCalls)
	}

	d.Invalidate(testGuildID)
	d.Invalidate(testGuildID)
	if _, err := d.Guild(ctx, testGuildID); err != nil {
		t.Fatalf("Guild() = %v", err)
	}
	if src.guildCalls != 2 {
		t.Errorf("guild fetched %d times after invalidation, want 2", src.guildCalls)
	}
}

func TestDirectoryNotReady(t *testing.T) {
	src := &fakeRest{}
	d := newTestDirectory(src, 0)

	if _, err := d.Guild(context.Background(), testGuildID); !errors.Is(err, errNotReady) {
		t.Errorf("Guild() = %v, want %v", err, errNotReady)
	}
	if src.guildCalls != 0 {
		t.Errorf("guild fetched %d times before ready", src.guildCalls)
	}
}

func TestDirectoryErrorsAreNotCached(t *testing.T) {
	src := &fakeRest{guildErr: errors.New("boom")}
	d := newTestDirectory(src, testSelfID)
	ctx := context.Background()

	if _, err := d.Guild(ctx, testGuildID); err == nil {
		t.Fatal("Guild() = nil, want error")
	}
	src.guildErr = nil
	if _, err := d.Guild(ctx, testGuildID); err != nil {
		t.Fatalf("Guild() = %v", err)
	}
	if src.guildCalls != 2 {
		t.Errorf("guild fetched %d times, want 2", src.guildCalls)
	}
}

func TestDirectoryLatestMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		d := newTestDirectory(&fakeRest{}, testSelfID)
		msg, err := d.LatestMessage(ctx, testKeyChan)
		if err != nil {
			t.Fatalf("LatestMessage() = %v", err)
		}
		if msg.IsPresent() {
			t.Errorf("LatestMessage() = %+v, want none", msg)
		}
	})

	t.Run("newest only", func(t *testing.T) {
		src := &fakeRest{messages: []discord.Message{
			{ID: 3, Content: "1234-5678"},
			{ID: 2, Content: "older"},
		}}
		d := newTestDirectory(src, testSelfID)
		msg, err := d.LatestMessage(ctx, testKeyChan)
		if err != nil {
			t.Fatalf("LatestMessage() = %v", err)
		}
		got, ok := msg.Get()
		if !ok || got.Content != "1234-5678" {
			t.Errorf("LatestMessage() = %+v, %v", got, ok)
		}
	})

	t.Run("never cached", func(t *testing.T) {
		src := &fakeRest{messages: []discord.Message{{ID: 1, Content: "a"}}}
		d := newTestDirectory(src, testSelfID)
		for range 2 {
			if _, err := d.LatestMessage(ctx, testKeyChan); err != nil {
				t.Fatalf("LatestMessage() = %v", err)
			}
		}
		if src.messageCalls != 2 {
			t.Errorf("history fetched %d times, want 2", src.messageCalls)
		}
	})

	t.Run("forbidden", func(t *testing.T) {
		src := &fakeRest{messagesErr: restError(http.StatusForbidden)}
		d := newTestDirectory(src, testSelfID)
		if _, err := d.LatestMessage(ctx, testKeyChan); !errors.Is(err, relay.ErrForbidden) {
			t.Errorf("LatestMessage() = %v, want %v", err, relay.ErrForbidden)
		}
	})

	t.Run("other failure", func(t *testing.T) {
		src := &fakeRest{messagesErr: errors.New("connection reset")}
		d := newTestDirectory(src, testSelfID)
		_, err := d.LatestMessage(ctx, testKeyChan)
		if err == nil || errors.Is(err, relay.ErrForbidden) {
			t.Errorf("LatestMessage() = %v, want non-forbidden error", err)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		forbidden bool
	}{
		{"403", restError(http.StatusForbidden), true},
		{"404", restError(http.StatusNotFound), false},
		{"no response", &rest.Error{Message: "no response"}, false},
		{"plain", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, relay.ErrForbidden) != tt.forbidden {
				t.Errorf("classify(%v) forbidden = %v, want %v", tt.err, !tt.forbidden, tt.forbidden)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classify(%v) lost the wrapped error", tt.err)
			}
		})
	}
}

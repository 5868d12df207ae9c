package bot

import (
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bcxlabs/buybackd/internal/amount"
	"github.com/bcxlabs/buybackd/internal/registry"
)

const (
	testChatID    = int64(42)
	testAddr      = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testCustodial = "0x2000000000000000000000000000000000000002"
)

type fakeTelegram struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeTelegram) StopReceivingUpdates() {}

func (f *fakeTelegram) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return f.sent[len(f.sent)-1].Text
}

type fakeCounter struct {
	count int
}

func (f *fakeCounter) CountByAddress(address string) (int, error) {
	return f.count, nil
}

type fakeInfoLedger struct {
	total *big.Int
	err   error
}

func (f *fakeInfoLedger) SumAmountIn() (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.total), nil
}

func testTerms() Terms {
	return Terms{
		PricePerUnit:     "0.5",
		FeePercent:       "2",
		MinSwapSize:      25,
		MaxSwapSize:      300,
		TotalLimit:       100000,
		CustodialAddress: testCustodial,
	}
}

func newTestBot(counter *fakeCounter, ledger InfoLedger) (*Bot, *fakeTelegram, *registry.Store) {
	client := &fakeTelegram{}
	store := registry.New(counter, 5)
	return New(client, store, ledger, testTerms()), client, store
}

func TestReplyFor_Start(t *testing.T) {
	b, _, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})

	reply, ok := b.replyFor(testChatID, "/start")
	if !ok {
		t.Fatal("expected a reply to /start")
	}
	for _, want := range []string{"0.5", "25", "300", "2%", testCustodial} {
		if !strings.Contains(reply, want) {
			t.Errorf("/start reply missing %q:\n%s", want, reply)
		}
	}
}

func TestReplyFor_Info(t *testing.T) {
	b, _, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: amount.FromTokens(1500)})

	reply, ok := b.replyFor(testChatID, "/info")
	if !ok {
		t.Fatal("expected a reply to /info")
	}
	if !strings.Contains(reply, "1500") {
		t.Errorf("/info reply missing total bought:\n%s", reply)
	}
	// 100000 limit minus 1500 bought.
	if !strings.Contains(reply, "98500") {
		t.Errorf("/info reply missing remaining amount:\n%s", reply)
	}
}

func TestReplyFor_InfoOverLimitClampsToZero(t *testing.T) {
	b, _, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: amount.FromTokens(200000)})

	reply, ok := b.replyFor(testChatID, "/info")
	if !ok {
		t.Fatal("expected a reply to /info")
	}
	if !strings.Contains(reply, "Remaining: 0 tokens") {
		t.Errorf("remaining not clamped to zero:\n%s", reply)
	}
}

func TestReplyFor_InfoLedgerError(t *testing.T) {
	b, _, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{err: errors.New("db closed")})

	reply, ok := b.replyFor(testChatID, "/info")
	if !ok {
		t.Fatal("expected a reply to /info")
	}
	if !strings.Contains(reply, "Error") {
		t.Errorf("expected error reply, got:\n%s", reply)
	}
}

func TestReplyFor_RegistersAddress(t *testing.T) {
	b, _, store := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})

	reply, ok := b.replyFor(testChatID, testAddr)
	if !ok {
		t.Fatal("expected a reply to an address message")
	}
	if !strings.Contains(reply, testAddr) || !strings.Contains(reply, testCustodial) {
		t.Errorf("registration reply incomplete:\n%s", reply)
	}

	reg, err := store.LookupBySourceAddress(testAddr)
	if err != nil {
		t.Fatalf("address not registered: %v", err)
	}
	if reg.SessionID != testChatID {
		t.Errorf("SessionID = %d, want %d", reg.SessionID, testChatID)
	}
}

func TestReplyFor_RegistrationAtLimit(t *testing.T) {
	b, _, store := newTestBot(&fakeCounter{count: 5}, &fakeInfoLedger{total: big.NewInt(0)})

	reply, ok := b.replyFor(testChatID, testAddr)
	if !ok {
		t.Fatal("expected a reply")
	}
	if !strings.Contains(reply, "limit") {
		t.Errorf("expected limit message:\n%s", reply)
	}
	if store.Len() != 0 {
		t.Error("registration recorded past the limit")
	}
}

func TestReplyFor_IgnoresChatter(t *testing.T) {
	b, _, store := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})

	for _, text := range []string{"hello", "0x1234", "/unknown", ""} {
		if reply, ok := b.replyFor(testChatID, text); ok {
			t.Errorf("replyFor(%q) replied %q, want silence", text, reply)
		}
	}
	if store.Len() != 0 {
		t.Error("chatter produced a registration")
	}
}

func TestHandleUpdate_SendsReply(t *testing.T) {
	b, client, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})

	b.handleUpdate(tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: testChatID},
			Text: "/start",
		},
	})

	if got := client.lastText(t); !strings.Contains(got, "Welcome") {
		t.Errorf("unexpected reply:\n%s", got)
	}
	if client.sent[0].ChatID != testChatID {
		t.Errorf("reply ChatID = %d, want %d", client.sent[0].ChatID, testChatID)
	}
}

func TestHandleUpdate_NilMessage(t *testing.T) {
	b, client, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})

	b.handleUpdate(tgbotapi.Update{})

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.sent) != 0 {
		t.Errorf("nil message produced %d sends", len(client.sent))
	}
}

func TestNotifySession_SendFailureIsSwallowed(t *testing.T) {
	b, client, _ := newTestBot(&fakeCounter{}, &fakeInfoLedger{total: big.NewInt(0)})
	client.err = errors.New("telegram unavailable")

	// Must not panic or block; failures are logged only.
	b.NotifySession(testChatID, "hello")
}

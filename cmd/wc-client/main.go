package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"moff.io/walletconnect/internal/cache"
	"moff.io/walletconnect/internal/config"
	"moff.io/walletconnect/internal/http"
	"moff.io/walletconnect/internal/starter"
	"moff.io/walletconnect/internal/walletconnect"
	"moff.io/walletconnect/internal/walletconnect/protocol"
	"moff.io/walletconnect/internal/walletconnect/session"
	"moff.io/walletconnect/internal/walletconnect/uri"
	"moff.io/walletconnect/pkg/errors"
	"moff.io/walletconnect/pkg/log"
)

var (
	resumeID   = flag.String("resume", "", "client id of a stored session to resume instead of pairing")
	joinURI    = flag.String("join", "", "wc: uri of an existing pairing to join")
	signMsg    = flag.String("sign", "", "message to personal_sign with the first account once connected")
	disconnect = flag.Bool("disconnect", false, "end the session after signing")
)

func main() {
	log.Infof("Starting wallet connect client")
	if err := startApp(); err != nil {
		log.Fatal(err)
	}
}

func startApp() (err error) {
	defer func() {
		if i := recover(); i != nil {
			err = errors.ErrorfAndReport("%v", i)
		}
	}()
	config.Read()
	log.SetLevel(*config.Global.LogLevel)
	if err := errors.NewSentryReporter(config.Global.SentryDSN, time.Minute); err != nil {
		log.Error(err)
	}
	errors.NewLarkReporter(config.Global.LarkAlarmWebhook, time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []walletconnect.Option{
		walletconnect.WithUserAgent(config.Global.UserAgent),
		walletconnect.WithRequestTimeout(config.Global.RequestTimeout()),
		walletconnect.WithHandshakeTimeout(config.Global.HandshakeTimeout()),
		walletconnect.WithMaxPending(config.Global.MaxPendingRequests),
		walletconnect.WithPublishRate(config.Global.PublishRate),
		walletconnect.WithURIHandler(printQRCode),
	}
	var store *cache.RedisStore
	if config.Global.RedisCredential.Enabled() {
		cache.Init(&config.Global.RedisCredential)
		defer cache.Close()
		store = cache.NewRedisStore(cache.Redis, cache.DefaultSessionPrefix, cache.DefaultSessionTTL)
		opts = append(opts, walletconnect.WithStore(store))
	}

	client, err := newClient(ctx, store, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	var serverOpts []http.Option
	if cache.RateLimiter != nil {
		serverOpts = append(serverOpts, http.WithRateLimit(cache.RateLimiter, config.Global.HTTP.RequestsPerMinute))
	}
	starter.Start(ctx, config.Global, http.NewServer(client, serverOpts...))

	accounts, chainID, err := client.EnsureSession(ctx)
	if err != nil {
		return err
	}
	snap := client.Session()
	peer := "unknown wallet"
	if snap.PeerMeta != nil {
		peer = snap.PeerMeta.Name()
	}
	log.Infof("connected to %v, chain %v, accounts %v", peer, chainID, accounts)
	log.Infof("resume this session with -resume %v", snap.ClientID)

	if *signMsg != "" {
		sig, err := client.PersonalSign(ctx, []byte(*signMsg), accounts[0])
		if err != nil {
			return err
		}
		fmt.Println(hexutil.Encode(sig))
	}
	if *disconnect {
		return client.Disconnect(ctx)
	}
	if config.Global.HTTP.Listen != "" {
		<-ctx.Done()
	}
	return nil
}

func newClient(ctx context.Context, store *cache.RedisStore, opts []walletconnect.Option) (*walletconnect.Client, error) {
	if *resumeID != "" {
		if store == nil {
			return nil, errors.New("-resume needs redis to be configured")
		}
		clientID, err := protocol.ParseTopic(*resumeID)
		if err != nil {
			return nil, err
		}
		return walletconnect.Resume(ctx, store, clientID, opts...)
	}
	options := session.New(config.Global.Meta())
	options.ChainID = config.Global.Chain()
	if *joinURI != "" {
		u, err := uri.Parse(*joinURI)
		if err != nil {
			return nil, err
		}
		options.Connection = session.URIConnection(u)
	} else {
		bridge, err := config.Global.Bridge()
		if err != nil {
			return nil, err
		}
		options.Connection = session.BridgeConnection(bridge)
	}
	return walletconnect.NewWithOptions(ctx, options, opts...)
}

func printQRCode(u *uri.URI) error {
	qr, err := u.TerminalQR()
	if err != nil {
		return err
	}
	fmt.Println(qr)
	fmt.Println(u.Encode())
	return nil
}

package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/adapters/rtc"
	"github.com/edukit/classsync/internal/adapters/signal"
	"github.com/edukit/classsync/internal/backend"
	"github.com/edukit/classsync/internal/config"
	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/engine"
	"github.com/edukit/classsync/internal/storage"
	"github.com/edukit/classsync/internal/store"
)

func main() {
	var (
		userName = flag.String("user", "", "display name")
		roomName = flag.String("room", "", "room name")
		roomType = flag.Int("type", 0, "room type")
		role     = flag.Int("role", int(domain.RoleStudent), "1 teacher, 2 student")
		password = flag.String("password", "", "room password")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if *userName == "" || *roomName == "" {
		log.Fatal().Msg("-user and -room are required")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	persist := storage.New(cfg.Client.StorageDir)
	st := store.New(persist)
	be := backend.NewClient(cfg.Client.APIBaseURL, cfg.Client.AuthKey)
	sig := signal.NewClient(cfg.Client.RelayURL)
	media := rtc.NewConnection(rtc.DefaultConfig())

	eng := engine.New(st, be, sig, media, persist)
	eng.OnSessionAborted = func(reason string) {
		log.Warn().Str("reason", reason).Msg("session aborted")
		cancel()
	}

	sig.OnPeerMessage = func(payload []byte, from domain.UID) {
		eng.HandlePeerMessage(ctx, payload, from)
	}
	sig.OnChannelMessage = func(payload []byte, member string) {
		eng.HandleChannelMessage(ctx, payload, member)
	}
	sig.OnConnectionStateChanged = eng.HandleConnectionStateChanged
	sig.OnMemberCountChanged = eng.HandleMemberCountChanged

	st.Subscribe(func(state store.RoomState) {
		log.Info().
			Int("users", len(state.Users)).
			Int("members", state.RTM.MemberCount).
			Int("course_state", int(state.Course.CourseState)).
			Msg("room state")
	})
	st.SetLanguage(cfg.Client.Language)

	params := backend.EntryParams{
		UserName: *userName,
		RoomName: *roomName,
		Type:     *roomType,
		Role:     domain.Role(*role),
		UUID:     uuid.NewString(),
		Password: *password,
	}
	if err := eng.LoginAndJoin(ctx, params); err != nil {
		log.Fatal().Err(err).Msg("login failed")
	}
	if err := eng.JoinMedia(ctx); err != nil {
		log.Error().Err(err).Msg("media join failed")
	}
	if err := eng.SaveSnapshot(); err != nil {
		log.Warn().Err(err).Msg("snapshot save failed")
	}

	log.Info().Str("room", *roomName).Msg("joined classroom")
	<-ctx.Done()

	exitCtx := context.Background()
	eng.ExitAll(exitCtx)
	st.Unsubscribe()
	log.Info().Msg("left classroom")
}

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/memoria/internal/metrics"
	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
)

// Resolver は上流IdPのプロフィールをローカルユーザーに対応付ける。
// subject idごとに1行だけを保証するのはusersテーブルの一意制約で、
// アプリケーション側ではロックを取らない。
type Resolver struct {
	users   repository.UserRepository
	metrics metrics.MetricsCollector
}

// NewResolver はResolverを生成する。collectorがnilの場合は記録しない。
func NewResolver(users repository.UserRepository, collector metrics.MetricsCollector) *Resolver {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Resolver{users: users, metrics: collector}
}

// Resolve はプロフィールに対応するローカルユーザーを返す。
// 未登録なら作成し、登録済みなら上流の表示名・メールアドレス・写真URLで上書きする。
// 作成が一意制約違反になった場合は、並行ログインで先に作成された行を再取得する。
// ストレージ障害は*model.PrincipalResolutionErrorとして返す。
func (r *Resolver) Resolve(ctx context.Context, profile *UpstreamProfile) (*model.User, error) {
	if profile == nil || profile.SubjectID == "" {
		return nil, &model.PrincipalResolutionError{Op: "resolve", Err: errors.New("upstream profile has no subject id")}
	}

	user, err := r.users.FindByUpstreamSubjectID(ctx, profile.SubjectID)
	if err != nil {
		return nil, &model.PrincipalResolutionError{Op: "find", Err: err}
	}
	if user != nil {
		return r.sync(ctx, user, profile)
	}

	candidate := &model.User{
		UpstreamSubjectID: profile.SubjectID,
		DisplayName:       profile.DisplayName,
		Email:             profile.Email,
		PhotoURL:          profile.PhotoURL,
	}
	err = r.users.Create(ctx, candidate)
	switch {
	case err == nil:
		r.metrics.RecordPrincipalCreated()
		slog.Info("new user created",
			slog.Int64("user_id", candidate.ID),
			slog.String("subject_id", candidate.UpstreamSubjectID),
		)
		return candidate, nil

	case errors.Is(err, repository.ErrDuplicateSubject):
		// 並行する初回ログインに負けた。勝者の行を使う。
		r.metrics.RecordResolveConflict()
		user, err = r.users.FindByUpstreamSubjectID(ctx, profile.SubjectID)
		if err != nil {
			return nil, &model.PrincipalResolutionError{Op: "refetch", Err: err}
		}
		if user == nil {
			return nil, &model.PrincipalResolutionError{Op: "refetch", Err: errors.New("user not found after unique conflict")}
		}
		return r.sync(ctx, user, profile)

	default:
		return nil, &model.PrincipalResolutionError{Op: "create", Err: err}
	}
}

// sync は上流のプロフィールが保存済みの値と異なる場合に上書きする。
func (r *Resolver) sync(ctx context.Context, user *model.User, profile *UpstreamProfile) (*model.User, error) {
	if user.DisplayName == profile.DisplayName &&
		user.Email == profile.Email &&
		user.PhotoURL == profile.PhotoURL {
		return user, nil
	}

	user.DisplayName = profile.DisplayName
	user.Email = profile.Email
	user.PhotoURL = profile.PhotoURL
	if err := r.users.UpdateProfile(ctx, user); err != nil {
		return nil, &model.PrincipalResolutionError{Op: "update", Err: err}
	}

	slog.Debug("user profile synced from upstream", slog.Int64("user_id", user.ID))
	return user, nil
}

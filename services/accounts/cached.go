package accounts

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/kazi/core"
	"github.com/trezcool/kazi/core/account"
	"github.com/trezcool/kazi/services/cache"
)

// CachedDirectory keeps directory answers for a bounded time.
// Misses are not cached. Cache failures fall through to the directory.
type CachedDirectory struct {
	next   account.Directory
	cache  cache.Cache
	ttl    time.Duration
	logger core.Logger
}

var _ account.Directory = (*CachedDirectory)(nil)

func NewCachedDirectory(next account.Directory, c cache.Cache, ttl time.Duration, logger core.Logger) *CachedDirectory {
	return &CachedDirectory{next: next, cache: c, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) GetUserByID(ctx context.Context, id string) (account.UserInfo, error) {
	return d.lookup(ctx, "users:id:"+id, func() (account.UserInfo, error) {
		return d.next.GetUserByID(ctx, id)
	})
}

func (d *CachedDirectory) GetUserByCode(ctx context.Context, code string) (account.UserInfo, error) {
	return d.lookup(ctx, "users:code:"+code, func() (account.UserInfo, error) {
		return d.next.GetUserByCode(ctx, code)
	})
}

func (d *CachedDirectory) GetUserByEmail(ctx context.Context, email string) (account.UserInfo, error) {
	return d.lookup(ctx, "users:email:"+core.CleanString(email, true), func() (account.UserInfo, error) {
		return d.next.GetUserByEmail(ctx, email)
	})
}

func (d *CachedDirectory) lookup(ctx context.Context, key string, fetch func() (account.UserInfo, error)) (account.UserInfo, error) {
	var info account.UserInfo
	err := d.cache.GetJSON(ctx, key, &info)
	if err == nil {
		return info, nil
	}
	if errors.Cause(err) != cache.ErrNotFound {
		d.logger.Warn("reading directory cache", err)
	}

	info, err = fetch()
	if err != nil {
		return info, err
	}
	if err := d.cache.SetJSON(ctx, key, info, d.ttl); err != nil {
		d.logger.Warn("writing directory cache", err)
	}
	return info, nil
}

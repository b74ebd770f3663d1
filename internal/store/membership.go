package store

import (
	"context"
	"fmt"

	"github.com/dkeye/Chat/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Membership answers room membership from the room_members table.
type Membership struct {
	db *gorm.DB
}

func NewMembership(db *gorm.DB) *Membership {
	return &Membership{db: db}
}

func (m *Membership) IsMember(ctx context.Context, room domain.RoomID, user domain.UserID) (bool, error) {
	var n int64
	err := m.db.WithContext(ctx).
		Model(&MembershipModel{}).
		Where("room_id = ? AND user_id = ?", string(room), string(user)).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("count membership: %w", err)
	}
	return n > 0, nil
}

func (m *Membership) Add(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	row := MembershipModel{RoomID: string(room), UserID: string(user)}
	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("add membership: %w", err)
	}
	return nil
}

func (m *Membership) Remove(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	err := m.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", string(room), string(user)).
		Delete(&MembershipModel{}).Error
	if err != nil {
		return fmt.Errorf("remove membership: %w", err)
	}
	return nil
}

// Users is the profile directory backed by the users table.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Lookup returns nil without error when the user has no profile.
func (u *Users) Lookup(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rows []UserModel
	err := u.db.WithContext(ctx).Where("id = ?", string(id)).Limit(1).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].ToDomain(), nil
}

func (u *Users) Save(ctx context.Context, user domain.User) error {
	row := UserModel{ID: string(user.ID), DisplayName: user.DisplayName, AvatarURL: user.AvatarURL}
	err := u.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

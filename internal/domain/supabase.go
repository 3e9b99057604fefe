package domain

import "github.com/supabase-community/supabase-go"

type SupabaseClient interface {
	Initialize() error
	IsConfigured() bool
	GetClientWithToken(token string) (*supabase.Client, error)
}

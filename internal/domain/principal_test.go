package domain

import "testing"

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		role      Role
		want      error
	}{
		{name: "anonymous", principal: Principal{}, role: RoleUser, want: ErrUnauthenticated},
		{name: "user as user", principal: Principal{ID: "u", Role: RoleUser}, role: RoleUser, want: nil},
		{name: "user as admin", principal: Principal{ID: "u", Role: RoleUser}, role: RoleAdmin, want: ErrForbidden},
		{name: "admin as admin", principal: Principal{ID: "a", Role: RoleAdmin}, role: RoleAdmin, want: nil},
		{name: "admin as user", principal: Principal{ID: "a", Role: RoleAdmin}, role: RoleUser, want: nil},
		{name: "unknown role", principal: Principal{ID: "x", Role: "guest"}, role: RoleUser, want: ErrForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequireRole(tc.principal, tc.role); got != tc.want {
				t.Fatalf("RequireRole() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanAccessOrder(t *testing.T) {
	order := Order{ID: "o", OwnerID: "owner"}

	if err := CanAccessOrder(Principal{ID: "owner", Role: RoleUser}, order); err != nil {
		t.Fatalf("owner denied: %v", err)
	}
	if err := CanAccessOrder(Principal{ID: "admin", Role: RoleAdmin}, order); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
	if err := CanAccessOrder(Principal{ID: "other", Role: RoleUser}, order); err != ErrForbidden {
		t.Fatalf("stranger err = %v, want ErrForbidden", err)
	}
	if err := CanAccessOrder(Principal{}, order); err != ErrUnauthenticated {
		t.Fatalf("anonymous err = %v, want ErrUnauthenticated", err)
	}
}

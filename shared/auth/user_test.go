package auth

import "testing"

func TestUser_UserType(t *testing.T) {
	tests := []struct {
		name       string
		user       *User
		expected   string
		wantSeller bool
	}{
		{name: "Nil user", user: nil, expected: ""},
		{name: "No metadata", user: &User{ID: "u"}, expected: ""},
		{name: "Pending", user: &User{UserMetadata: UserTypeMetadata(UserTypePending)}, expected: ""},
		{name: "Buyer", user: &User{UserMetadata: UserTypeMetadata(UserTypeBuyer)}, expected: UserTypeBuyer},
		{name: "Seller", user: &User{UserMetadata: UserTypeMetadata(UserTypeSeller)}, expected: UserTypeSeller, wantSeller: true},
		{name: "Unknown value", user: &User{UserMetadata: map[string]any{"user_type": "admin"}}, expected: ""},
		{name: "Wrong type", user: &User{UserMetadata: map[string]any{"user_type": 1}}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.UserType(); got != tt.expected {
				t.Errorf("UserType() = %q, want %q", got, tt.expected)
			}
			if got := tt.user.IsSeller(); got != tt.wantSeller {
				t.Errorf("IsSeller() = %v, want %v", got, tt.wantSeller)
			}
		})
	}
}

func TestValidUserType(t *testing.T) {
	for _, userType := range []string{UserTypeBuyer, UserTypeSeller} {
		if !ValidUserType(userType) {
			t.Errorf("ValidUserType(%q) = false", userType)
		}
	}
	for _, userType := range []string{"", UserTypePending, "Seller", "farmer"} {
		if ValidUserType(userType) {
			t.Errorf("ValidUserType(%q) = true", userType)
		}
	}
}

package user

import (
	"testing"
)

func Test_checkPassword(t *testing.T) {
	old := commonPasswords
	commonPasswords = []string{"p@ssw0rd!x"}
	t.Cleanup(func() { commonPasswords = old })

	type args struct {
		pwd, name, uname, email string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{name: "too short", args: args{pwd: "Sh0rt!"}, want: pwdMinLenTag},
		{name: "short multibyte", args: args{pwd: "Ünï¢0dé"}, want: pwdMinLenTag},
		{name: "whitespace", args: args{pwd: "Pass w0rd!x"}, want: pwdNoSpaceTag},
		{name: "all numeric", args: args{pwd: "1234567890"}, want: pwdNotAllNumTag},
		{name: "no upper", args: args{pwd: "passw0rd!x"}, want: pwdComplexityTag},
		{name: "no special", args: args{pwd: "Passw0rdxx"}, want: pwdComplexityTag},
		{name: "no digit", args: args{pwd: "Password!x"}, want: pwdComplexityTag},
		{name: "similar to name", args: args{pwd: "Alexander1!", name: "Alexander"}, want: pwdAttrSimTag},
		{name: "similar to username", args: args{pwd: "Alexander1!", uname: "alexander1"}, want: pwdAttrSimTag},
		{name: "common", args: args{pwd: "P@ssw0rd!X"}, want: pwdNoCommonTag},
		{name: "valid", args: args{pwd: "Pa$$w0rd!", name: "Ada", uname: "ada", email: "ada@test.test"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPassword(tt.args.pwd, tt.args.name, tt.args.uname, tt.args.email); got != tt.want {
				t.Errorf("checkPassword() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	err := ValidatePassword("1234567890", "", "", "")
	if err == nil || err.Error() != "password: "+pwdNotAllNumText {
		t.Errorf("ValidatePassword() error = %v, want %q", err, pwdNotAllNumText)
	}
	if err = ValidatePassword("Pa$$w0rd!", "Ada", "ada", ""); err != nil {
		t.Errorf("ValidatePassword() error = %v, want nil", err)
	}
}

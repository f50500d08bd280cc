package user

type User struct {
	Id          int
	Uid         string
	Username    string
	DisplayName string
	Settings    Settings
}

type Settings struct {
	// Timezone is an IANA zone name. It decides which calendar day is "today" for the user.
	Timezone string
}

package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/geocoder89/userhub/internal/domain/user"
)

func TestAdminRoutes_RoleGate(t *testing.T) {
	app := newTestApp(t, 0)
	plain := app.store.mustCreate(t, "alice", "pw", user.RoleUser)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)

	// anonymous
	for _, path := range []string{"/users", "/admin_profile"} {
		if w := app.get(path); w.Code != http.StatusForbidden {
			t.Fatalf("anonymous GET %s = %d, want 403", path, w.Code)
		}
	}

	app.sessions.loginAs(plain)
	for _, path := range []string{"/users", "/admin_profile"} {
		if w := app.get(path); w.Code != http.StatusForbidden {
			t.Fatalf("User GET %s = %d, want 403", path, w.Code)
		}
	}
	if w := app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {strconv.FormatInt(admin.ID, 10)}}); w.Code != http.StatusForbidden {
		t.Fatalf("User POST /users = %d, want 403", w.Code)
	}

	app.sessions.loginAs(admin)
	for _, path := range []string{"/users", "/admin_profile"} {
		w := app.get(path)
		if w.Code != http.StatusOK {
			t.Fatalf("Admin GET %s = %d, want 200", path, w.Code)
		}
		// both views are populated
		assertContains(t, w, "alice")
		assertContains(t, w, "root")
	}
}

func TestAdminRoutes_DemotedAdminLosesAccess(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	_ = app.store.mustCreate(t, "backup", "pw", user.RoleAdmin)
	app.sessions.loginAs(admin)

	// role changed underneath the live session
	if err := app.store.UpdateRole(context.Background(), admin.ID, user.RoleUser); err != nil {
		t.Fatalf("demote: %v", err)
	}

	if w := app.get("/users"); w.Code != http.StatusForbidden {
		t.Fatalf("demoted admin GET /users = %d, want 403", w.Code)
	}
}

func TestUsers_Create(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	app.sessions.loginAs(admin)

	w := app.postForm("/users", url.Values{"new_username": {"bob"}, "new_password": {"pw3"}, "new_role": {"Admin"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	assertContains(t, w, "User registered successfully!")
	assertContains(t, w, "bob")

	bob, err := app.store.GetByUsername(context.Background(), "bob")
	if err != nil || bob.Role != user.RoleAdmin || bob.PasswordHash != "hashed:pw3" {
		t.Fatalf("bob = %+v, %v", bob, err)
	}

	w = app.postForm("/users", url.Values{"new_username": {"bob"}, "new_password": {"x"}, "new_role": {"User"}})
	assertContains(t, w, "Username already exists")

	w = app.postForm("/users", url.Values{"new_username": {"eve"}, "new_password": {"x"}, "new_role": {"Root"}})
	assertContains(t, w, "New role must be one of User, Admin.")
	if _, err := app.store.GetByUsername(context.Background(), "eve"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("invalid role must not create a user")
	}
}

func TestUsers_Delete(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	alice := app.store.mustCreate(t, "alice", "pw1", user.RoleUser)
	_ = app.store.UpdateProfilePic(context.Background(), alice.ID, "2_cat.png")
	_ = app.uploads.Save(context.Background(), "2_cat.png", pngBytes, "image/png")
	app.sessions.loginAs(admin)

	id := func(u user.User) string { return strconv.FormatInt(u.ID, 10) }

	w := app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {id(admin)}})
	assertContains(t, w, "You cannot delete your own account.")

	w = app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {"999"}})
	assertContains(t, w, "User not found.")

	w = app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {id(alice)}})
	assertContains(t, w, "User deleted successfully")

	if _, err := app.store.GetByID(context.Background(), alice.ID); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("alice should be gone, got %v", err)
	}
	if app.uploads.has("2_cat.png") {
		t.Fatalf("deleted user's picture should be removed")
	}
}

func TestUsers_RoleUpdates(t *testing.T) {
	app := newTestApp(t, 0)
	root := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	other := app.store.mustCreate(t, "other", "pw", user.RoleAdmin)
	app.sessions.loginAs(root)

	id := strconv.FormatInt(other.ID, 10)

	// two admins: demoting one is fine
	w := app.postForm("/users", url.Values{"update_role": {"1"}, "user_id": {id}, "role": {"User"}})
	assertContains(t, w, "Role updated successfully")

	// promote back, then make root the only admin left by deleting other
	_ = app.store.UpdateRole(context.Background(), other.ID, user.RoleAdmin)
	w = app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {id}})
	assertContains(t, w, "User deleted successfully")

	// root is the last admin and is also the caller
	w = app.postForm("/users", url.Values{"update_role": {"1"}, "user_id": {strconv.FormatInt(root.ID, 10)}, "role": {"User"}})
	assertContains(t, w, "You cannot change your own role.")

	n, _ := app.store.CountByRole(context.Background(), user.RoleAdmin)
	if n != 1 {
		t.Fatalf("admin count = %d, want 1", n)
	}
}

func TestUsers_LastAdminCannotBeDeletedOrDemoted(t *testing.T) {
	app := newTestApp(t, 0)
	root := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	other := app.store.mustCreate(t, "other", "pw", user.RoleAdmin)
	app.sessions.loginAs(root)

	// root passes the admin check, then another admin demotes root before
	// root's own write lands, leaving other as the only admin
	app.store.beforeAdminWrite = func() {
		_ = app.store.UsersRepo.UpdateRole(context.Background(), root.ID, user.RoleUser)
	}

	id := strconv.FormatInt(other.ID, 10)

	w := app.postForm("/users", url.Values{"delete_user": {"1"}, "user_id": {id}})
	assertContains(t, w, "Cannot delete the last admin account.")

	// root's session still says Admin; restore the row so the next request gets past actingAdmin
	_ = app.store.UsersRepo.UpdateRole(context.Background(), root.ID, user.RoleAdmin)

	w = app.postForm("/users", url.Values{"update_role": {"1"}, "user_id": {id}, "role": {"User"}})
	assertContains(t, w, "Cannot demote the last admin account.")

	got, err := app.store.GetByID(context.Background(), other.ID)
	if err != nil || got.Role != user.RoleAdmin {
		t.Fatalf("other = %+v, %v; want untouched admin", got, err)
	}
}

func TestUsers_StoreErrorRendersGenericPage(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	app.sessions.loginAs(admin)

	app.store.listFn = func(ctx context.Context) ([]user.User, error) {
		return nil, errBoom
	}

	w := app.get("/users")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	assertContains(t, w, "Something went wrong.")
}

func TestUsers_UnknownAction(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.store.mustCreate(t, "root", "pw", user.RoleAdmin)
	app.sessions.loginAs(admin)

	w := app.postForm("/users", url.Values{"something": {"else"}})
	assertContains(t, w, "Unknown action.")
}

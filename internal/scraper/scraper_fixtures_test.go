package scraper

const liveStatusPage = `<html>
<head>
<title>12951 - Mumbai Rajdhani Running Status</title>
<meta name="description" content="Live Train Status of MUMBAI RAJDHANI and current running status">
</head>
<body>
<div class="train-update">
  <div class="train-update__status">Departed from Kota Jn at 02:15</div>
  <div class="train-update__time">Last Updated: 02:20 AM, 01 Mar</div>
</div>
<div class="running-status">
  <div class="well">
    <div class="rs__station-row">
      <div class="col-xs-4"><div class="rs__station-grid"><div class="circle"></div><span class="rs__station-name">Mumbai Central - MMCT</span></div></div>
      <div class="col-xs-2"><span>Day 1</span><span>01-Mar</span></div>
      <div class="col-xs-2"><span></span></div>
      <div class="col-xs-2"><span>17:00</span></div>
      <div class="col-xs-2"><div class="rs__station-delay">Right Time</div></div>
    </div>
  </div>
  <div class="well">
    <div class="rs__station-row">
      <div class="col-xs-4"><div class="rs__station-grid"><div class="circle blink"></div><span class="rs__station-name">Kota Jn</span></div></div>
      <div class="col-xs-2"><span>Day 2</span><span>02-Mar</span></div>
      <div class="col-xs-2"><span>02:05</span></div>
      <div class="col-xs-2"><span>02:15</span></div>
      <div class="col-xs-2"><div class="rs__station-delay">Late by 5 min</div></div>
    </div>
  </div>
  <div class="well">
    <div class="rs__station-row">
      <div class="col-xs-4"><div class="rs__station-grid"><div class="circle"></div><span class="rs__station-name">New Delhi - NDLS</span></div></div>
      <div class="col-xs-2"><span>Day 2</span><span>02-Mar</span></div>
      <div class="col-xs-2"><span>08:32</span></div>
      <div class="col-xs-2"><span></span></div>
      <div class="col-xs-2"><div class="rs__station-delay"></div></div>
    </div>
  </div>
</div>
</body>
</html>`

const liveStatusNoDataPage = `<html>
<head><title>Train Running Status</title></head>
<body><p>No data available for this train today.</p></body>
</html>`

const schedulePage = `<html>
<head>
<title>12951 - MUMBAI RAJDHANI Train Schedule | ConfirmTkt</title>
</head>
<body>
<p>Runs on Mon, Wed &amp; Fri</p>
<table>
  <tr><th>Sr</th><th>Station</th><th>Arrives</th><th>Departs</th><th>Halt</th><th>Distance</th><th>Avg Delay</th><th>Day</th></tr>
  <tr><td>1</td><td>Mumbai Central - MMCT</td><td>Source</td><td>17:00</td><td>-</td><td>0 km</td><td>Right Time</td><td>1</td></tr>
  <tr><td>2</td><td>Kota Jn - KOTA</td><td>02:05</td><td>02:15</td><td>10 min</td><td>1,012 km</td><td>Late by 12 min</td><td>2</td></tr>
  <tr><td>3</td><td>Kota Jn - KOTA</td><td>02:05</td><td>02:15</td><td>10 min</td><td>1,012 km</td><td></td><td>2</td></tr>
  <tr><td>4</td><td>New Delhi - NDLS</td><td>08:32</td><td>Destination</td><td></td><td>1386 km</td><td></td><td>2</td></tr>
</table>
</body>
</html>`

const pnrPage = `<html>
<head><title>15013 PNR Status</title></head>
<body>
<div class="pnr-card">
  <div>15013 - RANIKHET EXP</div>
  <div>Rajgarh - RHG, 17:05 → Kathgodam - KGM, 05:05</div>
  <div>Fri, 11 Jul | SL | GN | Expected platform: 4</div>
  <div>Chart prepared</div>
</div>
<table>
  <tr><th>Passenger</th><th>Current Status</th><th>Booking Status</th><th>Coach</th></tr>
  <tr><td>1</td><td>RAC 12</td><td>GNWL 40</td><td>-</td></tr>
  <tr><td>2</td><td><span style="color: green">CNF 33</span></td><td>GNWL 41</td><td>S4</td></tr>
</table>
<span class="pnr-rating">Rated 4.3 / 5</span>
</body>
</html>`
